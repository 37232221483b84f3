package tasks

import (
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/library/internal/circulation"
)

type unknownTask struct{}

func (unknownTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{Name: "unknown"}
}

func TestInlineDispatch(t *testing.T) {
	reconciler := &fakeReconciler{result: circulation.ReconcileResult{Checked: 3, Fixed: 1}}
	cleaner := &fakeCleaner{deleted: 2}
	reporter := &fakeReporter{}
	inline := Inline{Reconciler: reconciler, Cleaner: cleaner, Reporter: reporter}

	require.NoError(t, inline.Dispatch(ReconcileCatalogTask{}))
	assert.Equal(t, 1, reconciler.calls)

	require.NoError(t, inline.Dispatch(CleanupAuditEventsTask{RetentionDays: 7}))
	assert.Equal(t, 7*24*time.Hour, cleaner.retention)

	require.Len(t, reporter.records, 2)
	assert.Equal(t, "reconcile_catalog", reporter.records[0].action)
	assert.Equal(t, "cleanup_audit_events", reporter.records[1].action)

	err := inline.Dispatch(unknownTask{})
	assert.ErrorContains(t, err, "unknown")
}
