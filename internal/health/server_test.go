package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeQueues struct{ counts map[string]int }

func (f *fakeQueues) ActiveCounts() map[string]int { return f.counts }

func TestHandleHealth(t *testing.T) {
	s := NewServer(Options{ServiceName: "backtest-pilot", Version: "test"})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), "backtest-pilot")
}

func TestHandleReady(t *testing.T) {
	tests := []struct {
		name     string
		ready    bool
		pingErr  error
		wantCode int
	}{
		{"ready and db ok", true, nil, http.StatusOK},
		{"not ready", false, nil, http.StatusServiceUnavailable},
		{"db down", true, errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Options{
				ServiceName: "backtest-pilot",
				DB:          &fakePinger{err: tt.pingErr},
				Queues:      &fakeQueues{counts: map[string]int{"backtest:historical": 2}},
			})
			s.SetReady(tt.ready)

			rec := httptest.NewRecorder()
			s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			require.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), "queue:backtest:historical")
		})
	}
}

func TestReadinessGate(t *testing.T) {
	s := NewServer(Options{ServiceName: "backtest-pilot"})
	assert.False(t, s.IsReady())
	s.SetReady(true)
	assert.True(t, s.IsReady())
}
