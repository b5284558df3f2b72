package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func get(h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func only(t *testing.T, h *Health, kind Kind) *check {
	t.Helper()
	checks := h.snapshot(kind)
	require.Len(t, checks, 1)
	return checks[0]
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.Register(Liveness, "goroutines", passing)
	h.Register(Liveness, "db", failing("connection refused"))

	w := get(h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, w.Code, "checks start healthy")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	db := h.snapshot(Liveness)[1]
	ctx := context.Background()
	db.run(ctx)
	db.run(ctx)
	assert.Equal(t, http.StatusOK, get(h.LiveEndpoint, "/livez").Code, "below threshold")

	db.run(ctx)
	w = get(h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"db":"connection refused"}}`, w.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.Register(Readiness, "postgres", passing)
	h.Register(Readiness, "redis", failing("redis down"), WithThresholds(1, 1))

	w := get(h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, w.Body.String())

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, get(h.ReadyEndpoint, "/readyz").Code)
	assert.True(t, h.IsReady())

	h.snapshot(Readiness)[1].run(context.Background())
	w = get(h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"redis":"redis down"}}`, w.Body.String())
	assert.False(t, h.IsReady())

	h.SetReady(false)
	w = get(h.ReadyEndpoint, "/readyz")
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready","redis":"redis down"}}`, w.Body.String())
}

func TestReadyEndpoint_NoChecks(t *testing.T) {
	h := New()
	h.SetReady(true)

	assert.Equal(t, http.StatusOK, get(h.ReadyEndpoint, "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(h.LiveEndpoint, "/livez").Code)
}

func TestCheck_Recovery(t *testing.T) {
	down := true
	h := New()
	h.Register(Liveness, "flaky", func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(2, 2))
	c := only(t, h, Liveness)
	ctx := context.Background()

	c.run(ctx)
	c.run(ctx)
	assert.Equal(t, "down", c.problem())

	down = false
	c.run(ctx)
	assert.Equal(t, "unhealthy", c.problem(), "one success is not enough")
	c.run(ctx)
	assert.Empty(t, c.problem())
}

func TestCheck_Timeout(t *testing.T) {
	h := New()
	h.Register(Readiness, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond), WithThresholds(1, 1))
	c := only(t, h, Readiness)

	c.run(context.Background())
	assert.Contains(t, c.problem(), "deadline exceeded")
}

func TestStart(t *testing.T) {
	h := New()
	ran := make(chan struct{}, 1)
	h.Register(Liveness, "slow", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), time.Hour)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("check did not run on start")
	}
	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.Register(Liveness, "a", failing("err"))
	h.Register(Readiness, "b", passing)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				get(h.LiveEndpoint, "/livez")
				get(h.ReadyEndpoint, "/readyz")
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, PingCheck(pinger{})(ctx))
	err := PingCheck(pinger{err: errors.New("refused")})(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")

	require.NoError(t, GoroutineCountCheck(100_000)(ctx))
	err = GoroutineCountCheck(0)(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goroutines running")

	require.NoError(t, GCPauseCheck(time.Hour)(ctx))
}
