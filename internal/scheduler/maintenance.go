// Package scheduler runs periodic catalog maintenance on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/library/internal/tasks"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Dispatcher hands a task to whatever executes it: tasks.Client enqueues it,
// tasks.Inline runs it on the spot.
type Dispatcher interface {
	Dispatch(task backlite.Task) error
}

// Job is one scheduled maintenance activity.
type Job struct {
	Name     string
	Schedule string
	Task     backlite.Task
}

// ValidateSchedule checks a five-field cron expression.
func ValidateSchedule(schedule string) error {
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// Maintenance dispatches catalog reconciliation and audit cleanup on their schedules.
type Maintenance struct {
	dispatcher Dispatcher
	jobs       []Job

	cron      *cron.Cron
	entries   map[string]cron.EntryID
	mu        sync.RWMutex
	isRunning bool
}

// NewMaintenance creates a scheduler for jobs. Jobs with an empty schedule are skipped.
func NewMaintenance(dispatcher Dispatcher, jobs ...Job) *Maintenance {
	return &Maintenance{
		dispatcher: dispatcher,
		jobs:       jobs,
		cron:       cron.New(cron.WithParser(parser)),
		entries:    make(map[string]cron.EntryID),
	}
}

// DefaultJobs builds the standard maintenance jobs.
func DefaultJobs(reconcileSchedule, auditSchedule string, auditRetentionDays int) []Job {
	return []Job{
		{Name: "reconcile_catalog", Schedule: reconcileSchedule, Task: tasks.ReconcileCatalogTask{}},
		{Name: "cleanup_audit_events", Schedule: auditSchedule, Task: tasks.CleanupAuditEventsTask{RetentionDays: auditRetentionDays}},
	}
}

// Start registers the jobs and starts the cron loop. The scheduler stops when ctx is done.
func (m *Maintenance) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return nil
	}

	for _, job := range m.jobs {
		if job.Schedule == "" {
			log.Printf("Maintenance scheduler: %s disabled (no schedule)", job.Name)
			continue
		}
		if err := ValidateSchedule(job.Schedule); err != nil {
			return fmt.Errorf("%s: %w", job.Name, err)
		}

		job := job
		id, err := m.cron.AddFunc(job.Schedule, func() { m.dispatch(job) })
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
		m.entries[job.Name] = id
	}

	m.cron.Start()
	m.isRunning = true

	for name, id := range m.entries {
		log.Printf("Maintenance scheduler: %s next run at %v", name, m.cron.Entry(id).Next)
	}

	go func() {
		<-ctx.Done()
		m.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler
func (m *Maintenance) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return
	}

	// Stop accepting new jobs and wait for running jobs to complete
	<-m.cron.Stop().Done()
	m.isRunning = false

	log.Printf("Maintenance scheduler: stopped")
}

// RunNow dispatches the named job immediately.
func (m *Maintenance) RunNow(name string) error {
	for _, job := range m.jobs {
		if job.Name == name {
			return m.dispatch(job)
		}
	}
	return fmt.Errorf("unknown maintenance job %q", name)
}

// IsRunning returns whether the scheduler is active
func (m *Maintenance) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// NextRun returns when the named job fires next, or nil when it is not scheduled.
func (m *Maintenance) NextRun(name string) *time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.entries[name]
	if !ok || !m.isRunning {
		return nil
	}
	next := m.cron.Entry(id).Next
	return &next
}

func (m *Maintenance) dispatch(job Job) error {
	if err := m.dispatcher.Dispatch(job.Task); err != nil {
		log.Printf("Maintenance scheduler: failed to dispatch %s: %v", job.Name, err)
		return err
	}
	log.Printf("Maintenance scheduler: dispatched %s", job.Name)
	return nil
}
