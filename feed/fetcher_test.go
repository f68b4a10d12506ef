package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGetter_Get(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, "<rss/>")
	}))
	defer srv.Close()

	getter := NewHTTPGetter(5*time.Second, "feed-reader-test")
	body, err := getter.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<rss/>", body)
	assert.Equal(t, "feed-reader-test", gotUA)
}

func TestHTTPGetter_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPGetter(5*time.Second, "").Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPGetter_InvalidURL(t *testing.T) {
	getter := NewHTTPGetter(time.Second, "")

	_, err := getter.Get(context.Background(), "not-a-valid-url")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))

	_, err = getter.Get(context.Background(), "://missing-scheme")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestHTTPGetter_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPGetter(0, "").Get(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, context.Canceled))
}
