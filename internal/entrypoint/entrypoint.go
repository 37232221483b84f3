package entrypoint

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/library/internal/audit"
	"github.com/mrlokans/library/internal/auth"
	"github.com/mrlokans/library/internal/circulation"
	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/database"
	auditrepo "github.com/mrlokans/library/internal/database/audit"
	"github.com/mrlokans/library/internal/directory"
	"github.com/mrlokans/library/internal/fees"
	http_controllers "github.com/mrlokans/library/internal/http"
	"github.com/mrlokans/library/internal/scheduler"
	"github.com/mrlokans/library/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs the HTTP server until SIGINT or SIGTERM, then gives in-flight
// requests and onShutdown the configured timeout.
func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutting down, allowing %v", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if onShutdown != nil {
		onShutdown(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	log.Println("Server exiting")
}

// csrfSecret decodes a hex secret, takes any other value as raw bytes, and
// generates one when nothing is configured.
func csrfSecret(configured string) ([]byte, error) {
	if configured == "" {
		generated, err := auth.GenerateSessionSecret()
		if err != nil {
			return nil, err
		}
		log.Printf("Generated session secret (set AUTH_SESSION_SECRET to persist)")
		return hex.DecodeString(generated)
	}
	if secret, err := hex.DecodeString(configured); err == nil {
		return secret, nil
	}
	return []byte(configured), nil
}

// app is the wired server: router plus everything that must be released on
// the way out, in reverse order of acquisition.
type app struct {
	router  *gin.Engine
	closers []func(ctx context.Context)
}

func (a *app) onClose(fn func(ctx context.Context)) {
	a.closers = append(a.closers, fn)
}

func (a *app) shutdown(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}

// build opens storage, starts background maintenance and assembles the
// router. On error everything acquired so far is released.
func build(cfg *config.Config, version string) (*app, error) {
	a := &app{}
	router, err := a.wire(cfg, version)
	if err != nil {
		a.shutdown(context.Background())
		return nil, err
	}
	a.router = router
	return a, nil
}

func (a *app) wire(cfg *config.Config, version string) (*gin.Engine, error) {
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	a.onClose(func(context.Context) {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	})
	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("get SQL DB: %w", err)
	}

	clock, err := circulation.LoadClock(cfg.Circulation.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid LIBRARY_TIMEZONE: %w", err)
	}
	policy, err := fees.NewPolicy(cfg.Fees)
	if err != nil {
		return nil, fmt.Errorf("invalid fee configuration: %w", err)
	}

	auditService := audit.NewService(auditrepo.NewRepository(db.DB))
	circulationService := circulation.NewService(db.DB, clock, cfg.Circulation.LoanDays,
		circulation.WithAuditLogger(auditService))
	accruer := fees.NewAccruer(db.DB, clock, policy, auditService)
	log.Printf("Circulation: loan period %d days, fee %s per charge (%s)",
		circulationService.LoanDays(), policy.PerCharge.String(), policy.Trigger)

	dispatcher, taskStatus, err := startTasks(a, cfg, circulationService, auditService)
	if err != nil {
		return nil, err
	}

	maintenance := scheduler.NewMaintenance(dispatcher, scheduler.DefaultJobs(
		cfg.Maintenance.ReconcileSchedule,
		cfg.Maintenance.AuditSchedule,
		cfg.Audit.RetentionDays,
	)...)
	if cfg.Maintenance.Enabled {
		if err := maintenance.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("start maintenance scheduler: %w", err)
		}
		a.onClose(func(context.Context) { maintenance.Stop() })
	}

	authService := auth.NewService(db.DB, cfg.Auth)
	sessionManager, err := auth.NewSessionManager(sqlDB, cfg.Auth, cfg.Sessions)
	if err != nil {
		return nil, fmt.Errorf("initialize session manager: %w", err)
	}
	if closer, ok := sessionManager.Store.(interface{ Close() error }); ok {
		a.onClose(func(context.Context) {
			if err := closer.Close(); err != nil {
				log.Printf("Error closing session store: %v", err)
			}
		})
	}
	secret, err := csrfSecret(cfg.Auth.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("generate CSRF secret: %w", err)
	}

	if hasUsers, _ := authService.HasUsers(); !hasUsers {
		log.Printf("No users found. Visit /setup to create an administrator account.")
	}

	router, stopRouter, err := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:       db,
		Circulation:    circulationService,
		Fees:           accruer,
		Directory:      directory.New(sqlDB, db.Driver()),
		Audit:          auditService,
		AuthService:    authService,
		SessionManager: sessionManager,
		AuthConfig:     cfg.Auth,
		CSRFSecret:     secret,
		SecureCookies:  cfg.Auth.SecureCookies,
		CORSOrigins:    cfg.CORS.AllowedOrigins,
		TemplatesPath:  cfg.UI.TemplatesPath,
		StaticPath:     cfg.UI.StaticPath,
		PageSize:       cfg.Circulation.PageSize,
		Version:        version,
		Maintenance:    maintenance,
		TaskStatus:     taskStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	a.onClose(func(context.Context) { stopRouter() })
	return router, nil
}

// startTasks runs maintenance on the backlite queue, or inline when the
// queue is disabled. The status reader is nil in the inline case.
func startTasks(a *app, cfg *config.Config, reconciler *circulation.Service, auditService *audit.Service) (scheduler.Dispatcher, http_controllers.TaskStatusReader, error) {
	if !cfg.Tasks.Enabled {
		return tasks.Inline{Reconciler: reconciler, Cleaner: auditService, Reporter: auditService}, nil, nil
	}

	client, err := tasks.NewClient(cfg.Database.Path, tasks.FromConfig(cfg.Tasks))
	if err != nil {
		return nil, nil, fmt.Errorf("initialize task queue: %w", err)
	}
	a.onClose(func(context.Context) {
		if err := client.Close(); err != nil {
			log.Printf("Error closing task client: %v", err)
		}
	})

	client.RegisterMaintenance(reconciler, auditService, auditService)
	ctx, cancel := context.WithCancel(context.Background())
	go client.Start(ctx)
	a.onClose(func(shutdownCtx context.Context) {
		client.Stop(shutdownCtx)
		cancel()
	})
	return client, client, nil
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Library v%s", version)

	a, err := build(cfg, version)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	Serve(a.router, cfg, a.shutdown)
}
