package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/openhfr/facility-registry/pkg/audit"
	"github.com/openhfr/facility-registry/pkg/authz"
	"github.com/openhfr/facility-registry/pkg/cache"
	"github.com/openhfr/facility-registry/pkg/config"
	"github.com/openhfr/facility-registry/pkg/db"
	"github.com/openhfr/facility-registry/pkg/hierarchy"
	"github.com/openhfr/facility-registry/pkg/identifier"
	"github.com/openhfr/facility-registry/pkg/registry"
	"github.com/openhfr/facility-registry/pkg/webhook"
	"github.com/openhfr/facility-registry/pkg/workflow"
)

// app holds the wired components of one server process.
type app struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *slog.Logger

	metrics    *prometheus.Registry
	authorizer authz.Authorizer

	tree      *hierarchy.Manager
	registry  *registry.Store
	systems   *webhook.SystemStore
	broadcast *webhook.Broadcaster
	receiver  *webhook.Receiver
	workflow  *workflow.Service
	audit     *audit.Store
	retention *audit.RetentionWorker
	cache     *cache.ResponseCache
}

func newApp(cfg *config.Config, gdb *gorm.DB, logger *slog.Logger) (*app, error) {
	authorizer, err := authz.New(authz.AuthzMode(cfg.Auth.Mode), cfg.Auth.AdminRoles, cfg.Auth.ApproverRoles)
	if err != nil {
		return nil, err
	}
	ids, err := identifier.New(cfg.Identifier.Prefix, cfg.Identifier.Width)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg:        cfg,
		db:         gdb,
		logger:     logger,
		metrics:    reg,
		authorizer: authorizer,
		tree:       hierarchy.NewManager(gdb, logger),
		registry:   registry.NewStore(gdb),
		systems:    webhook.NewSystemStore(gdb),
		audit:      audit.NewStore(gdb),
	}

	webhookMetrics := webhook.NewMetrics(reg)
	a.broadcast = webhook.NewBroadcaster(
		webhook.WithTimeout(cfg.Webhook.Timeout),
		webhook.WithConcurrency(cfg.Webhook.Concurrency),
		webhook.WithMetrics(webhookMetrics),
		webhook.WithLogger(logger),
	)
	verifier := webhook.NewVerifier(a.systems, cfg.Webhook.InboundEvents)
	a.receiver = webhook.NewReceiver(verifier, a.systems, inboundLogger(logger), cfg.Webhook.MaxBodyBytes, webhookMetrics, logger)

	a.workflow = workflow.NewService(gdb, a.tree, a.registry, ids,
		workflow.WithNotifier(webhook.NewDispatcher(a.broadcast, a.systems)),
		workflow.WithMetrics(workflow.NewMetrics(reg)),
		workflow.WithLogger(logger),
		workflow.WithBroadcastTimeout(cfg.Webhook.BroadcastTimeout),
	)

	retentionDays := cfg.Audit.RetentionDays
	if !cfg.Audit.Enabled {
		retentionDays = 0
	}
	a.retention = audit.NewRetentionWorker(a.audit, retentionDays, logger)

	if cfg.Cache.Enabled {
		a.cache = cache.NewResponseCache(cfg.Cache.MaxSize, cfg.Cache.TTL)
	}
	return a, nil
}

// migrators lists every store owning tables.
func (a *app) migrators() []db.AutoMigrator {
	return []db.AutoMigrator{
		a.tree.Store(),
		a.registry,
		a.workflow.Store(),
		a.systems,
		a.audit,
	}
}

func (a *app) guard(resource, verb string) func(http.Handler) http.Handler {
	return authz.RequirePermission(a.authorizer, resource, verb)
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type",
			authz.HeaderUser, authz.HeaderRole,
			webhook.HeaderAPIKey, webhook.HeaderSignature, webhook.HeaderSignatureAlg,
		},
		ExposedHeaders: []string{cache.HeaderCache},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.readyHandler)
	r.Handle("/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{Registry: a.metrics}))

	r.Route("/api/v1", func(r chi.Router) {
		// Authenticated by signature, not by the proxy headers.
		r.Method(http.MethodPost, "/webhook", a.receiver)

		r.Group(func(r chi.Router) {
			r.Use(authz.IdentityMiddleware())
			r.Use(audit.Middleware(a.audit, audit.Options{
				Enabled:   a.cfg.Audit.Enabled,
				LogDenied: a.cfg.Audit.LogDenied,
			}, a.logger))
			r.Use(cache.InvalidateOnWrite(a.cache))

			r.Group(func(r chi.Router) {
				r.Use(cache.Middleware(a.cache))
				hierarchy.RegisterRoutes(r, a.tree, a.guard(authz.ResourceHierarchy, authz.VerbUpdate))
			})
			workflow.RegisterRoutes(r, a.workflow, workflow.Guards{
				Submit:  a.guard(authz.ResourceRequests, authz.VerbCreate),
				Approve: a.guard(authz.ResourceRequests, authz.VerbApprove),
				Delete:  a.guard(authz.ResourceRequests, authz.VerbDelete),
			})
			registry.RegisterRoutes(r, a.registry)
			webhook.RegisterRoutes(r, a.systems, a.broadcast, a.guard(authz.ResourceSystems, authz.VerbUpdate))
			audit.RegisterRoutes(r, a.audit, a.guard(authz.ResourceAudit, authz.VerbList))
		})
	})
	return r
}

func (a *app) readyHandler(w http.ResponseWriter, r *http.Request) {
	if err := db.Ping(r.Context(), a.db); err != nil {
		a.logger.Warn("readiness check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// inboundLogger records verified inbound events. The receiver has already
// stored the receipt.
func inboundLogger(logger *slog.Logger) webhook.InboundHandler {
	return webhook.InboundHandlerFunc(func(_ context.Context, system *webhook.SystemRecord, env webhook.Envelope) error {
		logger.Info("inbound webhook event", "systemID", system.ID, "event", env.Event, "timestamp", env.Timestamp)
		return nil
	})
}
