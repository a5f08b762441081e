package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nxtleveltech1/MantisNXT-sub023/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TxRunner opens a managed transaction and runs fn inside it. Injectable so
// batch scheduling can be tested without a database.
type TxRunner func(ctx context.Context, fn func(tx *gorm.DB) error) error

// TransactionManager runs per-upload work units inside managed transactions,
// in fixed-size batches processed by a bounded worker pool. A failing unit is
// rolled back to its savepoint and retried; the rest of the batch commits.
type TransactionManager struct {
	Logger *logrus.Logger
	Run    TxRunner

	BatchSize      int
	MaxConcurrency int
	MaxRetries     int
	RetryDelay     time.Duration
	StopOnError    bool
}

func NewTransactionManager(logger *logrus.Logger) *TransactionManager {
	return &TransactionManager{
		Logger: logger,
		Run: func(ctx context.Context, fn func(tx *gorm.DB) error) error {
			return config.GetDB().WithContext(ctx).Transaction(fn)
		},
		BatchSize:      100,
		MaxConcurrency: 5,
		MaxRetries:     2,
		RetryDelay:     1000 * time.Millisecond,
		StopOnError:    false,
	}
}

// BatchError records one failed work unit.
type BatchError struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult aggregates a whole ExecuteBatch run.
type BatchResult struct {
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Errors     []BatchError  `json:"errors"`
	Duration   time.Duration `json:"duration"`
}

// UnitFunc does the work for one unit inside the batch transaction.
type UnitFunc func(ctx context.Context, tx *gorm.DB, id string) error

// ExecuteBatch chunks ids into batches and feeds them to MaxConcurrency
// workers in submission order. Each batch is one transaction; each unit gets
// a savepoint so one bad unit does not poison its batch. With StopOnError
// the first failure aborts the current batch and stops scheduling new ones.
func (m *TransactionManager) ExecuteBatch(ctx context.Context, ids []string, fn UnitFunc) BatchResult {
	start := time.Now()
	result := BatchResult{}
	if len(ids) == 0 {
		result.Duration = time.Since(start)
		return result
	}

	batches := make(chan []string, (len(ids)+m.BatchSize-1)/m.BatchSize)
	for i := 0; i < len(ids); i += m.BatchSize {
		end := i + m.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches <- ids[i:end]
	}
	close(batches)

	var mu sync.Mutex
	var wg sync.WaitGroup
	stopped := false

	workers := m.MaxConcurrency
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				mu.Lock()
				abort := stopped
				mu.Unlock()
				if abort {
					return
				}

				batchResult := m.runBatch(ctx, batch, fn)

				mu.Lock()
				result.Successful += batchResult.Successful
				result.Failed += batchResult.Failed
				result.Errors = append(result.Errors, batchResult.Errors...)
				if m.StopOnError && batchResult.Failed > 0 {
					stopped = true
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	result.Duration = time.Since(start)
	return result
}

func (m *TransactionManager) runBatch(ctx context.Context, batch []string, fn UnitFunc) BatchResult {
	result := BatchResult{}

	err := m.Run(ctx, func(tx *gorm.DB) error {
		for i, id := range batch {
			sp := fmt.Sprintf("sp_unit_%d", i)
			savepoint(tx, sp)

			unitErr := m.runUnit(ctx, tx, id, fn)
			if unitErr != nil {
				rollbackTo(tx, sp)
				result.Failed++
				result.Errors = append(result.Errors, BatchError{ID: id, Reason: unitErr.Error()})
				if m.Logger != nil {
					config.LogError(m.Logger, "workflow", "runBatch", "unit failed", id, unitErr)
				}
				if m.StopOnError {
					return fmt.Errorf("stopped on first error: %v", unitErr)
				}
				continue
			}
			result.Successful++
		}
		return nil
	})
	if err != nil {
		// The batch transaction rolled back; units counted successful did
		// not land.
		if !m.StopOnError {
			result.Errors = append(result.Errors, BatchError{Reason: err.Error()})
		}
		result.Failed += result.Successful
		result.Successful = 0
	}
	return result
}

func (m *TransactionManager) runUnit(ctx context.Context, tx *gorm.DB, id string, fn UnitFunc) error {
	var err error
	for attempt := 0; attempt <= m.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.RetryDelay):
			}
		}
		err = fn(ctx, tx, id)
		if err == nil {
			return nil
		}
	}
	return err
}

func savepoint(tx *gorm.DB, name string) {
	if tx != nil {
		tx.SavePoint(name)
	}
}

func rollbackTo(tx *gorm.DB, name string) {
	if tx != nil {
		tx.RollbackTo(name)
	}
}
