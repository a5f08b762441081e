package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"
)

// NOTE: These tests are intentionally DB-free. The pass-through runner hands
// the unit function a nil transaction, which the manager treats as
// savepoint-less. Full DB integration tests need a MySQL instance that
// supports savepoints.

func passthroughRunner(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestManager() *TransactionManager {
	tm := NewTransactionManager(nil)
	tm.Run = passthroughRunner
	tm.RetryDelay = time.Millisecond
	return tm
}

func idList(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("upload-%03d", i)
	}
	return ids
}

func TestExecuteBatchAllSucceed(t *testing.T) {
	tm := newTestManager()
	ids := idList(250)

	var calls int64
	result := tm.ExecuteBatch(context.Background(), ids, func(ctx context.Context, tx *gorm.DB, id string) error {
		atomic.AddInt64(&calls, 1)
		return nil
	})

	if result.Successful != 250 || result.Failed != 0 {
		t.Fatalf("successful=%d failed=%d", result.Successful, result.Failed)
	}
	if calls != 250 {
		t.Fatalf("calls = %d", calls)
	}
	if result.Duration <= 0 {
		t.Fatalf("duration not recorded")
	}
}

// One bad unit must not take its batch down when StopOnError is off.
func TestExecuteBatchFailureIsolation(t *testing.T) {
	tm := newTestManager()
	tm.MaxRetries = 0
	ids := idList(10)

	result := tm.ExecuteBatch(context.Background(), ids, func(ctx context.Context, tx *gorm.DB, id string) error {
		if id == "upload-003" {
			return errors.New("forced failure")
		}
		return nil
	})

	if result.Successful != 9 || result.Failed != 1 {
		t.Fatalf("successful=%d failed=%d", result.Successful, result.Failed)
	}
	if len(result.Errors) != 1 || result.Errors[0].ID != "upload-003" {
		t.Fatalf("errors = %+v", result.Errors)
	}
	if result.Errors[0].Reason != "forced failure" {
		t.Fatalf("reason = %q", result.Errors[0].Reason)
	}
}

func TestExecuteBatchStopOnError(t *testing.T) {
	tm := newTestManager()
	tm.MaxRetries = 0
	tm.StopOnError = true
	tm.MaxConcurrency = 1
	tm.BatchSize = 10
	ids := idList(50)

	var calls int64
	result := tm.ExecuteBatch(context.Background(), ids, func(ctx context.Context, tx *gorm.DB, id string) error {
		atomic.AddInt64(&calls, 1)
		if id == "upload-012" {
			return errors.New("forced failure")
		}
		return nil
	})

	// Batches after the failing one must never be scheduled.
	if calls > 20 {
		t.Fatalf("calls = %d, scheduling did not stop", calls)
	}
	if result.Failed == 0 {
		t.Fatalf("no failure recorded")
	}
	// The failing batch rolled back, so its earlier units count as failed.
	if result.Successful != 10 {
		t.Fatalf("successful = %d, want only the first committed batch", result.Successful)
	}
}

func TestRunUnitRetries(t *testing.T) {
	tm := newTestManager()
	tm.MaxRetries = 2

	var calls int
	err := tm.runUnit(context.Background(), nil, "upload-000", func(ctx context.Context, tx *gorm.DB, id string) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unit should recover on third attempt: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}

	calls = 0
	err = tm.runUnit(context.Background(), nil, "upload-000", func(ctx context.Context, tx *gorm.DB, id string) error {
		calls++
		return errors.New("permanent")
	})
	if err == nil || err.Error() != "permanent" {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want initial attempt plus two retries", calls)
	}
}

func TestExecuteBatchBoundedConcurrency(t *testing.T) {
	tm := newTestManager()
	tm.BatchSize = 1
	tm.MaxConcurrency = 3
	ids := idList(30)

	var mu sync.Mutex
	active, peak := 0, 0
	result := tm.ExecuteBatch(context.Background(), ids, func(ctx context.Context, tx *gorm.DB, id string) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	if result.Successful != 30 {
		t.Fatalf("successful = %d", result.Successful)
	}
	if peak > 3 {
		t.Fatalf("peak concurrency = %d, want at most 3", peak)
	}
}

func TestExecuteBatchEmpty(t *testing.T) {
	tm := newTestManager()
	result := tm.ExecuteBatch(context.Background(), nil, func(ctx context.Context, tx *gorm.DB, id string) error {
		t.Fatal("unit called for empty input")
		return nil
	})
	if result.Successful != 0 || result.Failed != 0 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}
}
