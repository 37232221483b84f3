package tasks

import (
	"context"
	"fmt"

	"github.com/mikestefanello/backlite"
)

// Inline runs maintenance tasks synchronously in the caller's goroutine.
// It stands in for the queue when background tasks are disabled.
type Inline struct {
	Reconciler CatalogReconciler
	Cleaner    AuditEventCleaner
	Reporter   MaintenanceLogger
}

// Dispatch executes task immediately and returns its error.
func (i Inline) Dispatch(task backlite.Task) error {
	ctx := context.Background()
	switch t := task.(type) {
	case ReconcileCatalogTask:
		return ReconcileCatalogProcessor(i.Reconciler, i.Reporter)(ctx, t)
	case CleanupAuditEventsTask:
		return CleanupAuditEventsProcessor(i.Cleaner, i.Reporter)(ctx, t)
	default:
		return fmt.Errorf("no inline processor for queue %q", task.Config().Name)
	}
}
