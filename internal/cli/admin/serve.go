package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/policyrag/internal/api/handlers"
	"github.com/cloo-solutions/policyrag/internal/config"
	"github.com/cloo-solutions/policyrag/internal/jobs"
	"github.com/cloo-solutions/policyrag/internal/server"
	"github.com/cloo-solutions/policyrag/internal/service"
	"github.com/cloo-solutions/policyrag/internal/telemetry"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the policyrag API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", defaultMigrationsSource, "Migration source URL")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		// 10% sampling outside development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	migrations, _ := cmd.Flags().GetString("migrations")
	b, err := openBackend(ctx, cfg, backendOptions{
		requireEmbeddings: true,
		migrate:           !noMigrate,
		migrationsSource:  migrations,
		applicationName:   "policyragd",
	})
	if err != nil {
		return err
	}
	defer b.Close()

	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}

	sink, err := newCorpusSink(ctx, cfg)
	if err != nil {
		return err
	}
	ingestSvc := service.NewIngestService(b.Index, newOrganizer(sink))

	orchestrator := service.NewQueryOrchestrator(b.Index, rules, service.OrchestratorConfig{
		MaxDocumentsPerQuery:    cfg.MaxDocumentsPerQuery,
		SimilarityCutoff:        cfg.ChatSimilarityCutoff,
		EnableCategoryFiltering: cfg.EnableCategoryFiltering,
		EnableTypeFiltering:     cfg.EnableTypeFiltering,
	})

	completer := newCompleter(cfg)
	if completer == nil {
		log.Println("no completion key configured, answers will list the matching documents")
	}
	chatSvc := service.NewChatService(orchestrator, completer, service.ChatConfig{
		MaxContextLength: cfg.MaxContextLength,
	})

	if !cfg.HasAdminToken() {
		log.Println("POLICYRAG_ADMIN_TOKEN not set, admin endpoints are disabled")
	}

	var syncWorker *jobs.Worker
	if cfg.SyncInterval > 0 {
		syncWorker, err = startCorpusSync(ctx, cfg, b.Index, ingestSvc)
		if err != nil {
			return err
		}
	}

	router := server.NewRouter(server.RouterConfig{
		AdminToken:   cfg.AdminToken,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Ready: func(ctx context.Context) error {
			_, err := b.Index.Stats(ctx)
			return err
		},
		ChatHandler:     handlers.NewChatHandler(chatSvc),
		SearchHandler:   handlers.NewSearchHandler(b.Index, cfg.MaxSearchResults),
		DocumentHandler: handlers.NewDocumentHandler(b.Index, ingestSvc, cfg.OutputPath),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if syncWorker != nil {
		syncWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// startCorpusSync polls SourcePath for new or changed files. Files already
// present are treated as ingested when the index is not empty.
func startCorpusSync(ctx context.Context, cfg *config.Config, index *service.VectorIndex, ingestSvc *service.IngestService) (*jobs.Worker, error) {
	syncer := jobs.NewCorpusSync(cfg.SourcePath, ingestSvc)

	stats, err := index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.TotalVectors > 0 {
		if err := syncer.Prime(); err != nil {
			return nil, err
		}
	}

	worker := jobs.NewWorker("corpus sync", syncer, cfg.SyncInterval)
	go worker.Start(ctx)
	log.Printf("corpus sync watching %s every %v", cfg.SourcePath, cfg.SyncInterval)
	return worker, nil
}
