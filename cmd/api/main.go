package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"corevault.org/internal/audit"
	"corevault.org/internal/config"
	"corevault.org/internal/document"
	"corevault.org/internal/entity"
	"corevault.org/internal/httpapi"
	"corevault.org/internal/identity"
	"corevault.org/internal/obs"
	"corevault.org/internal/report"
	"corevault.org/internal/store/pg"
	"corevault.org/internal/workflow"
)

var version = "0.3.1"

func main() {
	log.SetFlags(0)
	envFile := flag.String("env", "", "path to an optional .env file")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("COREVAULT_COMMIT"))

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Storage: Postgres when a DSN is configured, in-memory otherwise.
	var (
		identityStore identity.Store
		documentStore document.Store
		workflowStore workflow.Store
		trail         audit.Recorder
		views         audit.ViewLedger
		probe         httpapi.ReadyProbe
	)
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		identityStore = store
		documentStore = store
		workflowStore = store.Workflows()
		trail = store
		views = store
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		log.Println("no COREVAULT_PG_DSN set, using in-memory stores")
		mem := audit.NewInMemory()
		identityStore = identity.NewInMemory()
		documentStore = document.NewInMemory()
		workflowStore = workflow.NewInMemory(mem)
		trail = mem
		views = mem
	}

	identitySvc, err := identity.NewService(identityStore)
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}
	tokens, err := identity.NewTokenService(cfg.TokenSecret,
		identity.WithIssuer(cfg.TokenIssuer),
		identity.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	documentSvc, err := document.NewService(documentStore,
		document.WithAlgorithm(document.Algorithm(cfg.ChecksumAlgorithm)))
	if err != nil {
		log.Fatalf("document service: %v", err)
	}
	workflowSvc, err := workflow.NewService(workflowStore)
	if err != nil {
		log.Fatalf("workflow service: %v", err)
	}

	var reportSvc *report.Service
	if cfg.ReportBackendURL != "" {
		completer, err := report.NewHTTPCompleter(cfg.ReportBackendURL, cfg.ReportModel,
			report.WithTimeout(cfg.ReportTimeout))
		if err != nil {
			log.Fatalf("report completer: %v", err)
		}
		reportSvc, err = report.NewService(documentSvc, completer, cfg.ReportTimeout)
		if err != nil {
			log.Fatalf("report service: %v", err)
		}
	} else {
		reportSvc, err = report.NewService(documentSvc, nil, cfg.ReportTimeout)
		if err != nil {
			log.Fatalf("report service: %v", err)
		}
	}

	registry := entity.NewRegistry()
	registry.Register(entity.KindOrganisation, func(ctx context.Context, id string) (any, error) {
		return identitySvc.GetOrganisation(ctx, id)
	})
	registry.Register(entity.KindDocument, func(ctx context.Context, id string) (any, error) {
		return documentSvc.Get(ctx, id)
	})
	registry.Register(entity.KindProfile, func(ctx context.Context, id string) (any, error) {
		return identitySvc.GetProfile(ctx, id)
	})
	registry.Register(entity.KindWorkflow, func(ctx context.Context, id string) (any, error) {
		return workflowSvc.Get(ctx, id)
	})
	// Processes are external references carried on documents; any id is
	// accepted as long as the kind is registered.
	registry.Register(entity.KindProcess, func(ctx context.Context, id string) (any, error) {
		return id, nil
	})

	api := httpapi.New(httpapi.Deps{
		Identity:  identitySvc,
		Tokens:    tokens,
		Documents: documentSvc,
		Workflows: workflowSvc,
		Trail:     trail,
		Views:     views,
		Reports:   reportSvc,
		Registry:  registry,
	}, httpapi.Limits{
		RatePerSecond: cfg.RateLimitPerSecond,
		RateBurst:     cfg.RateLimitBurst,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	}, probe, version)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting corevault-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
