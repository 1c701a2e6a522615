package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/five82/gridder/internal/grid"
)

func TestCalculateBackoff(t *testing.T) {
	baseInterval := 2 * time.Second

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 2 * time.Second},
		{"negative failures", -1, 2 * time.Second},
		{"one failure", 1, 4 * time.Second},
		{"two failures", 2, 8 * time.Second},
		{"three failures", 3, 16 * time.Second},
		{"four failures capped", 4, 30 * time.Second}, // Would be 32s, capped to 30s
		{"many failures capped", 10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, baseInterval)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d, %v) = %v, want %v", tt.failures, baseInterval, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_MaxCap(t *testing.T) {
	baseInterval := 2 * time.Second
	for failures := 0; failures <= 20; failures++ {
		got := calculateBackoff(failures, baseInterval)
		if got > maxBackoff {
			t.Errorf("calculateBackoff(%d, %v) = %v, exceeds maxBackoff %v", failures, baseInterval, got, maxBackoff)
		}
	}
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (c *countingRefresher) Refresh(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return err
	}
	return nil
}

func (c *countingRefresher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestPoller_KickRefreshesWithoutCadence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := &countingRefresher{}
	p := StartPoller(ctx, target, 0, nil)

	time.Sleep(20 * time.Millisecond)
	if got := target.count(); got != 0 {
		t.Fatalf("refreshes before kick = %d, want 0", got)
	}

	p.Kick()
	waitFor(t, func() bool { return target.count() == 1 })

	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatalf("poller did not stop after cancel")
	}
}

func TestPoller_TicksAndSurvivesFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := &countingRefresher{errs: []error{errors.New("boom"), grid.ErrSuperseded}}
	p := StartPoller(ctx, target, 5*time.Millisecond, nil)

	waitFor(t, func() bool { return target.count() >= 3 })
	cancel()
	<-p.Done()
}

func TestPoller_StopsWhenGridDestroyed(t *testing.T) {
	target := &countingRefresher{errs: []error{grid.ErrDestroyed}}
	p := StartPoller(context.Background(), target, time.Millisecond, nil)

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatalf("poller kept running after ErrDestroyed")
	}
	if got := target.count(); got != 1 {
		t.Fatalf("refreshes = %d, want 1", got)
	}
}
