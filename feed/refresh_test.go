package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robertmeta/feed-reader/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type fakeTarget struct {
	mu       sync.Mutex
	uuid     string
	link     string
	articles []model.Article
	ev       *events
	lookups  atomic.Int32
}

func (f *fakeTarget) UUID() string {
	f.lookups.Add(1)
	return f.uuid
}
func (f *fakeTarget) Link() string { return f.link }

func (f *fakeTarget) Articles() []model.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.articles
}

func (f *fakeTarget) SetArticles(a []model.Article) {
	f.mu.Lock()
	f.articles = a
	f.mu.Unlock()
	if f.ev != nil {
		f.ev.add("set:" + f.uuid)
	}
}

type fakeGetter struct {
	bodies map[string]string
	err    error
	calls  atomic.Int32

	// When gate is set, Get signals entered and blocks until gate is
	// closed or ctx ends.
	gate    chan struct{}
	entered chan struct{}
}

func (g *fakeGetter) Get(ctx context.Context, url string) (string, error) {
	g.calls.Add(1)
	if g.gate != nil {
		g.entered <- struct{}{}
		select {
		case <-g.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.err != nil {
		return "", g.err
	}
	body, ok := g.bodies[url]
	if !ok {
		return "", fmt.Errorf("%w: no body for %s", ErrTransport, url)
	}
	return body, nil
}

type fakeTray struct{ ev *events }

func (t *fakeTray) UpdateTray() { t.ev.add("tray") }

type fakeSelection struct{ uuid string }

func (s fakeSelection) SelectedUUID() string { return s.uuid }

type fakeView struct {
	ev       *events
	articles []model.Article
}

func (v *fakeView) UpdateArticles(a []model.Article) {
	v.articles = a
	v.ev.add("view")
}

func (v *fakeView) ResetScroll() { v.ev.add("scroll") }

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("../testdata/" + name)
	require.NoError(t, err)
	return string(data)
}

func TestRefresher_Refresh(t *testing.T) {
	ev := &events{}
	target := &fakeTarget{
		uuid: "feed-1",
		link: "https://example.com/rss",
		articles: []model.Article{
			{ID: "entry-1", Title: "kept", Date: 1, Read: true},
		},
		ev: ev,
	}
	getter := &fakeGetter{bodies: map[string]string{target.link: loadFixture(t, "rss2.xml")}}
	view := &fakeView{ev: ev}

	r := NewRefresher(getter, NewParser(), Hooks{
		Tray:      &fakeTray{ev: ev},
		Selection: fakeSelection{uuid: "feed-1"},
		View:      view,
	}, Options{})

	n, err := r.Refresh(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "entry-1 already exists")

	articles := target.Articles()
	require.Len(t, articles, 3)
	assert.Equal(t, []string{"entry-2", "https://example.com/entry-3", "entry-1"}, ids(articles))
	assert.Equal(t, "kept", articles[2].Title)
	assert.True(t, articles[2].Read)

	assert.Equal(t, []string{"set:feed-1", "tray", "view", "scroll"}, ev.list())
	assert.Equal(t, articles, view.articles)
}

func TestRefresher_UnselectedFeedSkipsView(t *testing.T) {
	ev := &events{}
	target := &fakeTarget{uuid: "feed-1", link: "https://example.com/rss", ev: ev}
	getter := &fakeGetter{bodies: map[string]string{target.link: loadFixture(t, "atom.xml")}}

	r := NewRefresher(getter, NewParser(), Hooks{
		Tray:      &fakeTray{ev: ev},
		Selection: fakeSelection{uuid: "other"},
		View:      &fakeView{ev: ev},
	}, Options{})

	n, err := r.Refresh(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"set:feed-1", "tray"}, ev.list())
}

func TestRefresher_NilHooks(t *testing.T) {
	target := &fakeTarget{uuid: "feed-1", link: "https://example.com/rss"}
	getter := &fakeGetter{bodies: map[string]string{target.link: loadFixture(t, "atom.xml")}}

	n, err := NewRefresher(getter, NewParser(), Hooks{}, Options{}).Refresh(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRefresher_FailureLeavesArticlesUntouched(t *testing.T) {
	original := []model.Article{
		{ID: "a", Title: "A", Date: 20, Read: true},
		{ID: "b", Title: "B", Date: 10},
	}

	tests := []struct {
		name    string
		getter  *fakeGetter
		wantErr error
	}{
		{
			name:    "transport error",
			getter:  &fakeGetter{err: fmt.Errorf("%w: connection refused", ErrTransport)},
			wantErr: ErrTransport,
		},
		{
			name:    "parse error",
			getter:  &fakeGetter{bodies: map[string]string{"https://example.com/rss": "<html>nope</html>"}},
			wantErr: ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &events{}
			before := append([]model.Article(nil), original...)
			target := &fakeTarget{uuid: "feed-1", link: "https://example.com/rss", articles: before, ev: ev}

			r := NewRefresher(tt.getter, NewParser(), Hooks{Tray: &fakeTray{ev: ev}}, Options{})
			n, err := r.Refresh(context.Background(), target)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.Equal(t, 0, n)
			assert.Equal(t, original, target.Articles())
			assert.Empty(t, ev.list(), "no state change or tray signal on failure")
		})
	}
}

func TestRefresher_RepeatRefreshFindsNothingNew(t *testing.T) {
	target := &fakeTarget{uuid: "feed-1", link: "https://example.com/rss"}
	getter := &fakeGetter{bodies: map[string]string{target.link: loadFixture(t, "rss2.xml")}}
	r := NewRefresher(getter, NewParser(), Hooks{}, Options{})

	n, err := r.Refresh(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = r.Refresh(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, target.Articles(), 3)
}

func newGatedGetter(link, body string) *fakeGetter {
	return &fakeGetter{
		bodies:  map[string]string{link: body},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 16),
	}
}

func TestRefresher_ConcurrentRefreshSharesFetch(t *testing.T) {
	target := &fakeTarget{uuid: "feed-1", link: "https://example.com/rss"}
	getter := newGatedGetter(target.link, loadFixture(t, "rss2.xml"))
	r := NewRefresher(getter, NewParser(), Hooks{}, Options{})

	const callers = 5
	counts := make([]int, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			counts[i], errs[i] = r.Refresh(context.Background(), target)
		}()
	}

	// Hold the fetch open until every caller has asked for the feed.
	<-getter.entered
	require.Eventually(t, func() bool { return target.lookups.Load() >= callers },
		time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(getter.gate)
	wg.Wait()

	assert.Equal(t, int32(1), getter.calls.Load(), "overlapping refreshes fetch once")
	for i := range counts {
		assert.NoError(t, errs[i])
		assert.Equal(t, 3, counts[i], "every caller gets the shared result")
	}
	assert.Len(t, target.Articles(), 3)
}

func TestRefresher_CanceledCallerDoesNotCancelSharedFetch(t *testing.T) {
	target := &fakeTarget{uuid: "feed-1", link: "https://example.com/rss"}
	getter := newGatedGetter(target.link, loadFixture(t, "rss2.xml"))
	r := NewRefresher(getter, NewParser(), Hooks{}, Options{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.Refresh(ctxA, target)
		errA <- err
	}()
	<-getter.entered

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller did not return")
	}

	// The fetch is still in flight; a live caller joins it.
	type result struct {
		n   int
		err error
	}
	resB := make(chan result, 1)
	go func() {
		n, err := r.Refresh(context.Background(), target)
		resB <- result{n, err}
	}()
	require.Eventually(t, func() bool { return target.lookups.Load() >= 2 },
		time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(getter.gate)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, 3, b.n)
	assert.Equal(t, int32(1), getter.calls.Load())
	assert.Len(t, target.Articles(), 3)
}

func TestRefresher_RefreshAll(t *testing.T) {
	rssBody := loadFixture(t, "rss2.xml")
	atomBody := loadFixture(t, "atom.xml")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rss":
			fmt.Fprint(w, rssBody)
		case "/atom":
			fmt.Fprint(w, atomBody)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	targets := []Target{
		&fakeTarget{uuid: "rss", link: srv.URL + "/rss"},
		&fakeTarget{uuid: "missing", link: srv.URL + "/missing"},
		&fakeTarget{uuid: "atom", link: srv.URL + "/atom"},
	}

	ev := &events{}
	r := NewRefresher(NewHTTPGetter(5*time.Second, "test"), NewParser(), Hooks{Tray: &fakeTray{ev: ev}}, Options{
		Concurrency:   2,
		RatePerSecond: 100,
	})

	results := r.RefreshAll(context.Background(), targets)
	require.Len(t, results, 3)

	assert.Equal(t, "rss", results[0].UUID)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 3, results[0].NewArticles)
	assert.Equal(t, 3, results[0].Total)

	assert.Equal(t, "missing", results[1].UUID)
	assert.True(t, errors.Is(results[1].Err, ErrTransport))

	assert.Equal(t, "atom", results[2].UUID)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 2, results[2].NewArticles)

	assert.Len(t, ev.list(), 2, "tray is signalled once per successful refresh")
}

func TestRefresher_RefreshAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	getter := &fakeGetter{bodies: map[string]string{}}
	r := NewRefresher(getter, NewParser(), Hooks{}, Options{RatePerSecond: 1})

	results := r.RefreshAll(ctx, []Target{
		&fakeTarget{uuid: "a", link: "https://example.com/a"},
		&fakeTarget{uuid: "b", link: "https://example.com/b"},
	})

	for _, res := range results {
		assert.Error(t, res.Err)
	}
}
