package voxeldb

import (
	"fmt"
	"strings"
	"time"

	"github.com/daxm-data/strain.report/internal/timeutil"
)

const (
	maxBusyRetries   = 5
	initialBusyDelay = 10 * time.Millisecond
)

// retryClock paces the backoff sleeps. Tests swap in a MockClock so
// the schedule is asserted without wall-clock waits.
var retryClock timeutil.Clock = timeutil.RealClock{}

// isSQLiteBusy reports whether err is a SQLite lock contention error.
// The driver surfaces these as plain errors, so substring matching is
// the only reliable test.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// retryOnBusy runs fn, retrying with exponential backoff while it
// returns a busy error. Any other error is returned to the caller
// immediately and unchanged.
func retryOnBusy(fn func() error) error {
	delay := initialBusyDelay
	var err error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		if attempt > 0 {
			retryClock.Sleep(delay)
			delay *= 2
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
	}
	return fmt.Errorf("database busy after %d retries: %w", maxBusyRetries, err)
}
