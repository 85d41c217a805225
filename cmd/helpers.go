package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/roschler/livepeer-image-helper-back-end/internal/audit"
	"github.com/roschler/livepeer-image-helper-back-end/internal/chat"
	"github.com/roschler/livepeer-image-helper-back-end/internal/completion"
	"github.com/roschler/livepeer-image-helper-back-end/internal/config"
	"github.com/roschler/livepeer-image-helper-back-end/internal/db"
	"github.com/roschler/livepeer-image-helper-back-end/internal/imagegen"
	"github.com/roschler/livepeer-image-helper-back-end/internal/llm"
	"github.com/roschler/livepeer-image-helper-back-end/internal/objstore"
	"github.com/roschler/livepeer-image-helper-back-end/internal/params"
	"github.com/roschler/livepeer-image-helper-back-end/internal/refine"
	"github.com/roschler/livepeer-image-helper-back-end/internal/server"
	"github.com/roschler/livepeer-image-helper-back-end/internal/volley"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `imagehelper init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s:\n%w", cfgFile, err)
	}
	return cfg, nil
}

// app holds everything a command needs to run turns.
type app struct {
	cfg       *config.Config
	db        *db.DB
	history   chat.Store
	audit     *audit.Store
	images    objstore.Store
	local     *objstore.LocalStore
	processor *volley.Processor
}

// Close releases the database.
func (a *app) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// openStores opens the database and the history store. The database is
// opened for both history backends since it also holds the audit trail.
func openStores(cfg *config.Config, logger *zap.Logger) (*app, error) {
	database, err := db.Open(cfg.History.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a := &app{cfg: cfg, db: database, audit: audit.NewStore(database)}

	switch cfg.History.Backend {
	case config.HistoryFile:
		if err := os.MkdirAll(cfg.History.Dir, 0o755); err != nil {
			database.Close()
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
		a.history = chat.NewFileStore(cfg.History.Dir, logger)
	default:
		a.history = chat.NewSQLiteStore(database, logger)
	}
	return a, nil
}

// buildApp wires the full turn pipeline from config.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a, err := openStores(cfg, logger)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	completer, err := createCompleterFromConfig(cfg, logger)
	if err != nil {
		return fail(err)
	}
	generator, err := createGeneratorFromConfig(cfg, logger)
	if err != nil {
		return fail(err)
	}
	if err := a.openImageStore(ctx); err != nil {
		return fail(err)
	}

	machine := params.NewMachine(cfg.Limits, logger.Named("params"),
		params.WithSpeedRule(cfg.Features.SpeedComplaintEnabled))
	refiner := refine.NewPipeline(completer, a.images, logger.Named("refine"),
		refine.WithLogDir(cfg.Refine.LogDir))
	importer := objstore.NewImporter(a.images, logger.Named("objstore"),
		objstore.WithTrustedHosts(cfg.Storage.TrustedHosts...))

	a.processor = volley.NewProcessor(volley.Deps{
		Completer: completer,
		History:   a.history,
		Machine:   machine,
		Refiner:   refiner,
		Generator: generator,
		Importer:  importer,
		Audit:     a.audit,
	}, volley.Options{
		ModelLock:         cfg.Image.ModelLock,
		Verbose:           cfg.Features.Verbose,
		HistoryForIntents: cfg.Features.HistoryForIntents,
	}, logger.Named("volley"))
	return a, nil
}

func (a *app) openImageStore(ctx context.Context) error {
	cfg := a.cfg.Storage
	switch cfg.Backend {
	case config.StorageS3:
		s3, err := objstore.NewS3Store(ctx, objstore.S3Config{
			Bucket:        cfg.Bucket,
			Region:        cfg.Region,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("creating s3 store: %w", err)
		}
		a.images = s3
	default:
		base := cfg.PublicBaseURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d%s", a.cfg.Server.Port, server.FilesPrefix)
		}
		a.local = objstore.NewLocalStore(cfg.LocalDir, base)
		a.images = a.local
	}
	return nil
}

// createCompleterFromConfig creates the completion service based on config settings.
func createCompleterFromConfig(cfg *config.Config, logger *zap.Logger) (*completion.Service, error) {
	envVar := config.APIKeyEnvVar(cfg.LLM.Provider)
	provider, err := llm.NewProvider(llm.ProviderConfig{
		Type:    string(cfg.LLM.Provider),
		Model:   cfg.LLM.Model,
		APIKey:  os.Getenv(envVar),
		BaseURL: cfg.LLM.BaseURL,
		RPM:     cfg.LLM.RPM,
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider (set %s): %w", envVar, err)
	}
	return completion.NewService(provider, cfg.LLM.Model, logger.Named("completion"),
		completion.WithVisionModel(cfg.LLM.VisionModel),
		completion.WithMaxTokens(cfg.LLM.MaxTokens),
	), nil
}

// createGeneratorFromConfig creates the image generator based on config settings.
func createGeneratorFromConfig(cfg *config.Config, logger *zap.Logger) (imagegen.Generator, error) {
	envVar := config.ImageAPIKeyEnvVar(cfg.Image.Generator)
	apiKey := os.Getenv(envVar)
	size := imagegen.Size{Width: cfg.Image.Width, Height: cfg.Image.Height, Count: cfg.Image.Count}

	switch cfg.Image.Generator {
	case config.GeneratorLivepeer:
		return imagegen.NewLivepeerGenerator(cfg.Image.BaseURL, apiKey, size, logger.Named("imagegen")), nil
	case config.GeneratorOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("%s environment variable is required for the openai image generator", envVar)
		}
		return imagegen.NewOpenAIGenerator(apiKey, cfg.Image.BaseURL, cfg.Image.Model, size, logger.Named("imagegen")), nil
	default:
		return nil, errors.New("unsupported image generator: " + string(cfg.Image.Generator))
	}
}
