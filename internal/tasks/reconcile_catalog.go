package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/library/internal/circulation"
)

// CatalogReconciler recomputes every book's status and reservation count
// from its reservations.
type CatalogReconciler interface {
	Reconcile(ctx context.Context) (circulation.ReconcileResult, error)
}

// ReconcileCatalogTask repairs books whose stored state drifted from the ledger.
type ReconcileCatalogTask struct{}

// Config returns the queue configuration for reconciliation tasks.
func (t ReconcileCatalogTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "reconcile_catalog",
		MaxAttempts: 2,
		Backoff:     5 * time.Minute,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ReconcileCatalogProcessor creates a processor function for ReconcileCatalogTask.
func ReconcileCatalogProcessor(reconciler CatalogReconciler, reporter MaintenanceLogger) backlite.QueueProcessor[ReconcileCatalogTask] {
	return func(ctx context.Context, task ReconcileCatalogTask) error {
		if reconciler == nil {
			return fmt.Errorf("catalog reconciler not configured")
		}

		result, err := reconciler.Reconcile(ctx)
		if err != nil {
			err = fmt.Errorf("reconcile catalog: %w", err)
		}
		if reporter != nil {
			reporter.LogMaintenance("reconcile_catalog",
				fmt.Sprintf("Checked %d books, fixed %d", result.Checked, result.Fixed),
				map[string]any{"checked": result.Checked, "fixed": result.Fixed}, err)
		}
		if err != nil {
			return err
		}

		log.Printf("[TASK] Reconciled catalog: %d books checked, %d fixed", result.Checked, result.Fixed)
		return nil
	}
}

// NewReconcileCatalogQueue creates a backlite queue for reconciliation tasks.
func NewReconcileCatalogQueue(reconciler CatalogReconciler, reporter MaintenanceLogger) backlite.Queue {
	return backlite.NewQueue(ReconcileCatalogProcessor(reconciler, reporter))
}
