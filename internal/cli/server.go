package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"reading-study-service/internal/app"
	"reading-study-service/internal/config"
	"reading-study-service/internal/domain"
	"reading-study-service/internal/flow"
	"reading-study-service/internal/infra/collaborator"
	"reading-study-service/internal/infra/file"
	"reading-study-service/internal/infra/memory"
	pgstore "reading-study-service/internal/infra/postgres"
	redisstore "reading-study-service/internal/infra/redis"
	"reading-study-service/internal/infra/sqlite"
	transport "reading-study-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the study server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Log.Logger(os.Stderr)
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	counter, err := flow.CounterByName(cfg.Study.Tokenizer)
	if err != nil {
		return err
	}
	service := app.NewStudyService(deps.sessions, deps.definitions, deps.gateway,
		app.WithLogger(logger),
		app.WithValidator(flow.NewValidator(counter)),
		app.WithSubmitTimeout(config.TTLDuration(cfg.Study.SubmitTimeout, 30*time.Second)),
	)

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(service, transport.RouterOptions{
			DefaultStudyID: cfg.Study.DefaultID,
			CORSOrigins:    cfg.Server.CORSOrigins,
			Logger:         logger,
		}),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting study service", "port", finalPort, "default_study", cfg.Study.DefaultID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	idle := config.TTLDuration(cfg.Study.IdleTimeout, 30*time.Minute)
	g.Go(func() error {
		service.RunEviction(gctx, evictionInterval(idle), idle)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		// let pending submissions finish before stores close
		service.Wait()
		return err
	})
	return g.Wait()
}

// evictionInterval sweeps a few times per idle window, at most once a second.
func evictionInterval(idle time.Duration) time.Duration {
	if interval := idle / 4; interval > time.Second {
		return interval
	}
	return time.Second
}

type dependencies struct {
	sessions    app.SessionRepository
	definitions app.DefinitionRepository
	gateway     app.SubmissionGateway
	closers     []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDependencies picks the backing stores from configuration. Definitions
// come from the collaborator, Postgres, a local file or the built-in sample,
// in that order of preference; submissions go to the collaborator, Postgres,
// SQLite or memory.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (*dependencies, error) {
	deps := &dependencies{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		deps.closers = append(deps.closers, func() { _ = redisClient.Close() })
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.closers = append(deps.closers, pool.Close)
	}

	var client *collaborator.Client
	if cfg.Collaborator.BaseURL != "" {
		client = collaborator.NewClient(collaborator.Config{
			BaseURL:        cfg.Collaborator.BaseURL,
			DefinitionPath: cfg.Collaborator.DefinitionPath,
			SubmissionPath: cfg.Collaborator.SubmissionPath,
			CSRFHeader:     cfg.Collaborator.CSRFHeader,
			Timeout:        config.TTLDuration(cfg.Collaborator.Timeout, 15*time.Second),
		}, nil)
	}

	// file and sample definitions are served under the default study ID
	studyID := cfg.Study.DefaultID
	if studyID == "" {
		studyID = "default"
	}
	var loader memory.DefinitionLoader
	switch {
	case client != nil:
		loader = client
	case pool != nil:
		loader = pgstore.NewDefinitionLoader(pool)
	case cfg.Study.DefinitionFile != "":
		loader = file.NewDefinitionLoader(studyID, cfg.Study.DefinitionFile)
	default:
		logger.Warn("no definition source configured, serving the built-in sample study", "study_id", studyID)
		loader = memory.NewStaticDefinitionLoader(sampleStudies(studyID))
	}

	definitionTTL := config.TTLDuration(cfg.Study.DefinitionTTL, 10*time.Minute)
	if redisClient != nil {
		deps.definitions = redisstore.NewDefinitionRepository(redisClient, loader, definitionTTL)
		deps.sessions = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
	} else {
		deps.definitions = memory.NewDefinitionRepository(loader, definitionTTL)
		deps.sessions = memory.NewSessionStore()
	}

	switch {
	case client != nil:
		deps.gateway = client
	case pool != nil:
		deps.gateway = pgstore.NewSubmissionStore(pool)
	case cfg.SQLite.Path != "":
		store, err := sqlite.NewSubmissionStore(ctx, cfg.SQLite.Path)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.closers = append(deps.closers, func() { _ = store.Close() })
		deps.gateway = store
	default:
		logger.Warn("no submission sink configured, responses are kept in memory only")
		deps.gateway = memory.NewSubmissionLog()
	}
	return deps, nil
}

// sampleStudies is served under studyID when nothing else is configured so the
// flow can be tried locally.
func sampleStudies(studyID string) map[string]domain.StudyDefinition {
	return map[string]domain.StudyDefinition{
		studyID: {
			Story: "The lighthouse keeper climbed the stairs every evening. One night the lamp would not light, " +
				"and a ship was already rounding the point.",
			Contexts: []string{
				"Imagine you are the keeper.",
				"Imagine you are the ship's captain.",
			},
			Questions: []domain.Question{
				{Text: "What would you do first?", WordLimit: 30},
				{Text: "What are you most worried about?", WordLimit: 20},
			},
		},
	}
}
