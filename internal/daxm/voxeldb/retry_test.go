package voxeldb

import (
	"errors"
	"testing"
	"time"

	"github.com/daxm-data/strain.report/internal/timeutil"
)

func TestIsSQLiteBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"bare SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"unrelated error", errors.New("no such table: voxels"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteBusy(tt.err); got != tt.want {
				t.Errorf("isSQLiteBusy(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// swapRetryClock installs a MockClock for the duration of a subtest.
// Subtests that call it must not run in parallel.
func swapRetryClock(t *testing.T) *timeutil.MockClock {
	t.Helper()
	mock := timeutil.NewMockClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	saved := retryClock
	retryClock = mock
	t.Cleanup(func() { retryClock = saved })
	return mock
}

func TestRetryOnBusy(t *testing.T) {
	t.Run("success on first try", func(t *testing.T) {
		mock := swapRetryClock(t)
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
		if len(mock.Sleeps()) != 0 {
			t.Errorf("expected no sleeps, got %v", mock.Sleeps())
		}
	})

	t.Run("success after retries", func(t *testing.T) {
		mock := swapRetryClock(t)
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			return nil
		})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
		want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
		got := mock.Sleeps()
		if len(got) != len(want) {
			t.Fatalf("expected %d sleeps, got %v", len(want), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("sleep %d = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("non-busy error fails immediately", func(t *testing.T) {
		mock := swapRetryClock(t)
		calls := 0
		want := errors.New("no such table: voxels")
		err := retryOnBusy(func() error {
			calls++
			return want
		})
		if err != want {
			t.Errorf("expected error %v, got %v", want, err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
		if len(mock.Sleeps()) != 0 {
			t.Errorf("expected no sleeps, got %v", mock.Sleeps())
		}
	})

	t.Run("gives up after max retries with doubling backoff", func(t *testing.T) {
		mock := swapRetryClock(t)
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		})
		if err == nil {
			t.Error("expected error, got nil")
		}
		if calls != maxBusyRetries {
			t.Errorf("expected %d calls, got %d", maxBusyRetries, calls)
		}
		want := []time.Duration{
			10 * time.Millisecond,
			20 * time.Millisecond,
			40 * time.Millisecond,
			80 * time.Millisecond,
		}
		got := mock.Sleeps()
		if len(got) != len(want) {
			t.Fatalf("expected %d sleeps, got %v", len(want), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("sleep %d = %v, want %v", i, got[i], want[i])
			}
		}
	})
}
