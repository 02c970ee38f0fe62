package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/repoctx/internal/events"
	"github.com/fyrsmithlabs/repoctx/internal/fetch"
)

// fakeSession answers from a map and tracks peak concurrency.
type fakeSession struct {
	mu       sync.Mutex
	pages    map[string]*fetch.Page
	errs     map[string]error
	delay    func(url string) time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (f *fakeSession) Fetch(ctx context.Context, url string) (*fetch.Page, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.delay != nil {
		select {
		case <-time.After(f.delay(url)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if p, ok := f.pages[url]; ok {
		return p, nil
	}
	return &fetch.Page{URL: url, OK: true, Body: "body of " + url}, nil
}

func makeTargets(n int) []Target {
	targets := make([]Target, n)
	for i := range targets {
		targets[i] = Target{Path: fmt.Sprintf("main/f%02d.go", i), URL: fmt.Sprintf("raw://f%02d", i)}
	}
	return targets
}

func TestBatches(t *testing.T) {
	tests := []struct {
		n, size int
		want    [][2]int
	}{
		{23, 10, [][2]int{{0, 10}, {10, 20}, {20, 23}}},
		{20, 10, [][2]int{{0, 10}, {10, 20}}},
		{3, 10, [][2]int{{0, 3}}},
		{0, 10, nil},
		{5, 0, [][2]int{{0, 5}}},
		{5, 2, [][2]int{{0, 2}, {2, 4}, {4, 5}}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.n, tt.size), func(t *testing.T) {
			assert.Equal(t, tt.want, Batches(tt.n, tt.size))
		})
	}
}

func TestWithBatchSize_NonPositive(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, New(nil, nil, WithBatchSize(0)).BatchSize())
	assert.Equal(t, DefaultBatchSize, New(nil, nil, WithBatchSize(-3)).BatchSize())
	assert.Equal(t, 4, New(nil, nil, WithBatchSize(4)).BatchSize())
}

func TestFetchAll_BatchesAndStatus(t *testing.T) {
	session := &fakeSession{delay: func(string) time.Duration { return time.Millisecond }}
	rec := &events.Recorder{}
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "batch_seconds"})
	s := New(session, rec, WithBatchSize(10), WithBatchObserver(hist))

	targets := makeTargets(23)
	var got []Target
	for target, outcome := range s.FetchAll(context.Background(), targets) {
		require.True(t, outcome.OK())
		assert.Equal(t, "body of "+target.URL, outcome.Content)
		got = append(got, target)
	}

	assert.Equal(t, targets, got)
	assert.Equal(t, []string{
		"STATUS:Processing files 1-10 of 23...",
		"STATUS:Processing files 11-20 of 23...",
		"STATUS:Processing files 21-23 of 23...",
	}, rec.Lines())
	assert.LessOrEqual(t, session.peak.Load(), int32(10))
	assert.Equal(t, 1, testutil.CollectAndCount(hist))
}

func TestFetchAll_StatusPrecedesBatchOutcomes(t *testing.T) {
	session := &fakeSession{}
	rec := &events.Recorder{}
	s := New(session, rec, WithBatchSize(2))

	var seen []int
	for range s.FetchAll(context.Background(), makeTargets(5)) {
		seen = append(seen, rec.Count(events.Status))
	}
	assert.Equal(t, []int{1, 1, 2, 2, 3}, seen)
}

func TestFetchAll_InputOrderDespiteCompletionOrder(t *testing.T) {
	targets := makeTargets(5)
	session := &fakeSession{delay: func(url string) time.Duration {
		// Earlier targets finish last.
		for i, tg := range targets {
			if tg.URL == url {
				return time.Duration(len(targets)-i) * 5 * time.Millisecond
			}
		}
		return 0
	}}
	s := New(session, nil)

	var paths []string
	for target := range s.FetchAll(context.Background(), targets) {
		paths = append(paths, target.Path)
	}
	require.Len(t, paths, 5)
	for i, tg := range targets {
		assert.Equal(t, tg.Path, paths[i])
	}
	assert.Greater(t, session.peak.Load(), int32(1), "batch members run concurrently")
}

func TestFetchAll_FailuresDoNotAbort(t *testing.T) {
	targets := makeTargets(4)
	session := &fakeSession{
		errs: map[string]error{targets[1].URL: errors.New("connection reset")},
		pages: map[string]*fetch.Page{
			targets[2].URL: {URL: targets[2].URL, StatusCode: 404, Reason: "HTTP 404"},
		},
	}
	s := New(session, nil)

	var failures []string
	ok := 0
	for target, outcome := range s.FetchAll(context.Background(), targets) {
		if outcome.OK() {
			ok++
			continue
		}
		failures = append(failures, target.Path+": "+outcome.Err.Error())
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, []string{
		"main/f01.go: connection reset",
		"main/f02.go: HTTP 404",
	}, failures)
}

func TestFetchAll_EarlyBreakStopsBatches(t *testing.T) {
	session := &fakeSession{}
	rec := &events.Recorder{}
	s := New(session, rec, WithBatchSize(3))

	for range s.FetchAll(context.Background(), makeTargets(9)) {
		break
	}
	assert.Equal(t, int32(3), session.calls.Load())
	assert.Equal(t, 1, rec.Count(events.Status))
}

func TestFetchAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session := &fakeSession{}
	s := New(session, nil, WithBatchSize(2))

	n := 0
	for range s.FetchAll(ctx, makeTargets(6)) {
		n++
		if n == 2 {
			cancel()
		}
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), session.calls.Load())
}

func TestFetchAll_Empty(t *testing.T) {
	rec := &events.Recorder{}
	s := New(&fakeSession{}, rec)
	for range s.FetchAll(context.Background(), nil) {
		t.Fatal("no outcomes expected")
	}
	assert.Zero(t, rec.Count(events.Status))
}

func TestFetchAll_Limiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(&fakeSession{}, nil, WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))
	// A cancelled context still dispatches nothing.
	for range s.FetchAll(ctx, makeTargets(2)) {
		t.Fatal("no outcomes expected")
	}

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	s = New(&fakeSession{}, nil, WithLimiter(limiter))
	short, stop := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer stop()

	var failed int
	for _, o := range s.FetchAll(short, makeTargets(2)) {
		if !o.OK() {
			failed++
		}
	}
	assert.Equal(t, 1, failed, "second request cannot get a token before the deadline")
}
