package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/cloo-solutions/policyrag/internal/config"
	"github.com/cloo-solutions/policyrag/internal/database"
	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/openai"
	"github.com/cloo-solutions/policyrag/internal/repository"
	"github.com/cloo-solutions/policyrag/internal/service"
	"github.com/cloo-solutions/policyrag/internal/storage"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	goopenai "github.com/sashabaranov/go-openai"
)

const defaultMigrationsSource = "file://migrations"

// backendOptions selects what openBackend prepares besides the index.
type backendOptions struct {
	// requireEmbeddings fails when no embedding key is configured.
	requireEmbeddings bool
	// migrate applies pending migrations before the postgres collection is used.
	migrate          bool
	migrationsSource string
	// applicationName tags the postgres connections of this command.
	applicationName string
}

// backend is the opened vector store with the index on top of it.
type backend struct {
	Index   *service.VectorIndex
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend opens the configured vector store and wraps it in a VectorIndex.
func openBackend(ctx context.Context, cfg *config.Config, opts backendOptions) (*backend, error) {
	embedder, err := newEmbedder(cfg, opts.requireEmbeddings)
	if err != nil {
		return nil, err
	}

	b := &backend{}
	var collection service.Collection

	switch cfg.VectorBackend {
	case config.BackendPostgres:
		if opts.migrate {
			source := opts.migrationsSource
			if source == "" {
				source = defaultMigrationsSource
			}
			if err := runMigrations(cfg.DatabaseURL, source); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pool, err := database.NewPool(ctx, database.Config{
			URL:             cfg.DatabaseURL,
			MaxConns:        cfg.DBMaxConns,
			ConnectAttempts: cfg.DBConnectAttempts,
			ApplicationName: opts.applicationName,
		})
		if err != nil {
			return nil, domain.Wrap(domain.ErrStoreFailed, err)
		}
		b.closers = append(b.closers, pool.Close)
		log.Println("connected to database")
		collection = repository.NewPgCollection(pool, cfg.CollectionName)

	default:
		store, err := repository.OpenBadgerStore(cfg.BadgerPath, false, cfg.Debug)
		if err != nil {
			return nil, domain.Wrap(domain.ErrStoreFailed, err)
		}
		b.closers = append(b.closers, func() {
			if err := store.Close(); err != nil {
				log.Printf("failed to close badger store: %v", err)
			}
		})
		log.Printf("opened badger store at %s", cfg.BadgerPath)
		collection = store.Collection(cfg.CollectionName)
	}

	b.Index = service.NewVectorIndex(collection, embedder, service.VectorIndexConfig{
		MinSimilarityScore: cfg.MinSimilarityScore,
		MaxCandidates:      service.DefaultMaxCandidates,
	})
	return b, nil
}

// missingEmbedder stands in when no embedding key is configured, so that
// commands that never embed can still open the index.
type missingEmbedder struct{}

func (missingEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, domain.Wrap(domain.ErrMissingConfig, fmt.Errorf("POLICYRAG_OPENAI_API_KEY is not set"))
}

func newEmbedder(cfg *config.Config, required bool) (service.EmbeddingClient, error) {
	if !cfg.HasOpenAI() {
		if required {
			return nil, domain.Wrap(domain.ErrMissingConfig, fmt.Errorf("POLICYRAG_OPENAI_API_KEY is required"))
		}
		return missingEmbedder{}, nil
	}
	return openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.EmbeddingBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	}), nil
}

// newCompleter returns nil when no completion key is configured; answers then
// list the retrieved sources.
func newCompleter(cfg *config.Config) service.Completer {
	if !cfg.HasCompletion() {
		return nil
	}
	return openai.NewCompletionClient(openai.CompletionConfig{
		APIKey:      cfg.CompletionKey(),
		BaseURL:     cfg.CompletionBaseURL,
		Model:       cfg.CompletionModel,
		MaxTokens:   cfg.CompletionMaxTokens,
		Temperature: cfg.CompletionTemperature,
	})
}

// newCorpusSink writes the organized corpus under OutputPath and mirrors it to
// S3 when S3 is configured.
func newCorpusSink(ctx context.Context, cfg *config.Config) (service.CorpusSink, error) {
	fs := storage.NewFSSink(cfg.OutputPath)
	if !cfg.HasS3() {
		return fs, nil
	}

	s3Sink, err := storage.NewS3Sink(ctx, storage.S3SinkConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		Prefix:          cfg.S3Prefix,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 sink: %w", err)
	}
	if err := s3Sink.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	log.Printf("S3 bucket '%s' ready, mirroring corpus to %s", cfg.S3Bucket, s3Sink)

	return storage.NewMirrorSink(fs, s3Sink), nil
}

func newOrganizer(sink service.CorpusSink) *service.DocumentOrganizer {
	tables := domain.DefaultTables()
	return service.NewDocumentOrganizer(
		service.NewTextNormalizer(tables),
		service.NewMetadataExtractor(service.NewCategorizer(tables)),
		sink,
	)
}

// loadRules returns the built-in override rules, or the rules file when one is configured.
func loadRules(cfg *config.Config) (*service.OverrideRuleStore, error) {
	if cfg.OverrideRulesFile == "" {
		return service.DefaultOverrideRules(), nil
	}
	rules, err := service.LoadOverrideRules(cfg.OverrideRulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load override rules: %w", err)
	}
	log.Printf("loaded %d override rules from %s", rules.Len(), cfg.OverrideRulesFile)
	return rules, nil
}

func runMigrations(databaseURL, source string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	upToDate := err == migrate.ErrNoChange

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	switch {
	case err == migrate.ErrNilVersion:
		log.Println("migrations: database is up to date (no migrations applied)")
	case dirty:
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	case upToDate:
		log.Printf("migrations: database is up to date (version %d)", version)
	default:
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
