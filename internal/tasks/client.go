package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
)

// Client runs library maintenance on a backlite queue stored in its own
// SQLite file, so queue traffic never contends with circulation writes.
type Client struct {
	queue   *backlite.Client
	db      *sql.DB
	workers int
	started atomic.Bool
}

// TasksDBPath places the queue database next to the main database file with a
// "-tasks" suffix. Postgres deployments have no main file and use
// ./library-tasks.db.
func TasksDBPath(mainDBPath string) string {
	if mainDBPath == "" {
		mainDBPath = "./library.db"
	}
	dir, base := filepath.Split(mainDBPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".db"
	}
	return filepath.Join(dir, stem+"-tasks"+ext)
}

func openQueueDB(path string, workers int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks database: %w", err)
	}
	// every worker holds a connection while it runs; the rest serve enqueues and status reads
	db.SetMaxOpenConns(workers + 5)
	db.SetMaxIdleConns(workers + 2)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// NewClient opens the queue database beside mainDBPath and installs the
// backlite schema. Register queues before calling Start.
func NewClient(mainDBPath string, cfg Config) (*Client, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}

	db, err := openQueueDB(TasksDBPath(mainDBPath), cfg.Workers)
	if err != nil {
		return nil, err
	}

	queue, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          taskLogger{},
	})
	if err == nil {
		err = queue.Install()
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set up task queue: %w", err)
	}

	return &Client{queue: queue, db: db, workers: cfg.Workers}, nil
}

// Register adds queues to the client.
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.queue.Register(q)
	}
}

// RegisterMaintenance registers the catalog reconciliation and audit
// cleanup queues.
func (c *Client) RegisterMaintenance(reconciler CatalogReconciler, cleaner AuditEventCleaner, reporter MaintenanceLogger) {
	c.Register(
		NewReconcileCatalogQueue(reconciler, reporter),
		NewCleanupAuditEventsQueue(cleaner, reporter),
	)
}

// Start runs the workers until ctx is cancelled. Repeated calls are ignored.
func (c *Client) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	log.Printf("[TASK] Queue started with %d workers", c.workers)
	c.queue.Start(ctx)
}

// Stop waits for running tasks until ctx expires. It reports whether every
// worker finished in time.
func (c *Client) Stop(ctx context.Context) bool {
	if !c.started.Load() {
		return true
	}

	ok := c.queue.Stop(ctx)
	if ok {
		log.Println("[TASK] Queue stopped")
	} else {
		log.Println("[TASK] Queue stop timed out; unfinished tasks will be released on next start")
	}
	return ok
}

// Close releases the queue database. Call it after Stop.
func (c *Client) Close() error {
	return c.db.Close()
}

// Add starts an operation to enqueue one or more tasks.
func (c *Client) Add(tasks ...backlite.Task) *backlite.TaskAddOp {
	return c.queue.Add(tasks...)
}

// Dispatch enqueues a single task for the workers.
func (c *Client) Dispatch(task backlite.Task) error {
	if _, err := c.Add(task).Save(); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Config().Name, err)
	}
	return nil
}

// Status reports the state of an enqueued task.
func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.queue.Status(ctx, taskID)
}

// taskLogger routes backlite's logging through the standard logger.
type taskLogger struct{}

func (taskLogger) Info(message string, params ...any) {
	log.Printf("[TASK] "+message, params...)
}

func (taskLogger) Error(message string, params ...any) {
	log.Printf("[TASK ERROR] "+message, params...)
}
