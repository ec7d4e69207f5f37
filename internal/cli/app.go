package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/roach88/contentflow/internal/action"
	"github.com/roach88/contentflow/internal/config"
	"github.com/roach88/contentflow/internal/permission"
	"github.com/roach88/contentflow/internal/pgstore"
	"github.com/roach88/contentflow/internal/repository"
	"github.com/roach88/contentflow/internal/schema"
	"github.com/roach88/contentflow/internal/sensitivity"
	"github.com/roach88/contentflow/internal/service"
	"github.com/roach88/contentflow/internal/store"
	"github.com/roach88/contentflow/internal/workflow"
)

// App is a fully wired service and the repository it owns.
type App struct {
	Config  *config.Config
	Repo    repository.Repository
	Service *service.Service
}

// Close releases the repository.
func (a *App) Close() error {
	return a.Repo.Close()
}

// setupLogging installs the process logger. JSON output gets JSON logs so
// both streams stay machine-readable.
func setupLogging(opts *RootOptions) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

// openApp loads the configuration and wires every component.
func openApp(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	svc, err := newService(cfg, repo)
	if err != nil {
		repo.Close()
		return nil, WrapExitError(ExitCommandError, "failed to initialize service", err)
	}
	return &App{Config: cfg, Repo: repo, Service: svc}, nil
}

func openRepository(ctx context.Context, cfg *config.Config) (repository.Repository, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		slog.Info("opening database", "driver", cfg.Database.Driver)
		return pgstore.Open(ctx, cfg.Database.DSN)
	default:
		slog.Info("opening database", "driver", cfg.Database.Driver, "path", cfg.Database.Path)
		return store.Open(cfg.Database.Path)
	}
}

func newService(cfg *config.Config, repo repository.Repository) (*service.Service, error) {
	validator := schema.NewValidator()
	if cfg.Schema.Dir != "" {
		n, err := validator.LoadDir(cfg.Schema.Dir)
		if err != nil {
			return nil, fmt.Errorf("load schemas: %w", err)
		}
		slog.Info("content type schemas loaded", "dir", cfg.Schema.Dir, "count", n)
	}

	engine := workflow.NewEngine(repo, newRegistry(cfg, repo), workflow.WithRecorder(repo))

	resolver := permission.NewResolver(repo, permission.WithPrivilegedRole(cfg.Permissions.PrivilegedRole))
	checker := permission.NewCachingResolver(resolver, cfg.Permissions.CacheTTL)

	filter := sensitivity.NewFilter(repo,
		sensitivity.WithPrivilegedRoles(cfg.Sensitivity.PrivilegedRoles...),
		sensitivity.WithHiddenContentType(cfg.Sensitivity.HiddenContentType),
		sensitivity.WithPlaceholder(cfg.Sensitivity.MaskPlaceholder),
	)

	return service.New(repo, engine,
		service.WithChecker(checker),
		service.WithValidator(validator),
		service.WithFilter(filter),
	), nil
}

// newRegistry builds the action registry. Unconfigured notifiers log
// instead of sending.
func newRegistry(cfg *config.Config, repo repository.Repository) *action.Registry {
	client := &http.Client{Timeout: cfg.Webhook.Timeout}
	deps := action.Dependencies{
		MailFrom:   cfg.Email.From,
		HTTPClient: client,
		Store:      repo,
	}
	if cfg.Email.SMTPAddr != "" {
		deps.Mailer = &action.SMTPMailer{Addr: cfg.Email.SMTPAddr, From: cfg.Email.From}
	}
	if cfg.SMS.GatewayURL != "" {
		deps.SMS = &action.HTTPSMSGateway{URL: cfg.SMS.GatewayURL, APIKey: cfg.SMS.APIKey, Client: client}
	}
	return action.NewDefaultRegistry(deps)
}
