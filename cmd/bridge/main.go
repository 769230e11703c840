package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/akd-tools/sdd-bridge/internal/api"
	bridgepkg "github.com/akd-tools/sdd-bridge/internal/bridge"
	"github.com/akd-tools/sdd-bridge/internal/config"
	"github.com/akd-tools/sdd-bridge/internal/gitexec"
	ghclient "github.com/akd-tools/sdd-bridge/internal/github"
	"github.com/akd-tools/sdd-bridge/internal/health"
	"github.com/akd-tools/sdd-bridge/internal/metrics"
	"github.com/akd-tools/sdd-bridge/internal/prompts"
	"github.com/akd-tools/sdd-bridge/internal/provision"
	"github.com/akd-tools/sdd-bridge/internal/registry"
	"github.com/akd-tools/sdd-bridge/internal/session"
	slackpkg "github.com/akd-tools/sdd-bridge/internal/slack"
	"github.com/akd-tools/sdd-bridge/internal/store"
	"github.com/akd-tools/sdd-bridge/internal/tmux"
	"github.com/akd-tools/sdd-bridge/internal/workflow"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	projectsDir := expandPath(cfg.ProjectsDir)
	devDir := expandPath(cfg.DevDir)

	logger.Info().
		Str("environment", cfg.Environment).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Str("projects_dir", projectsDir).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Bool("github_enabled", cfg.GitHubEnabled()).
		Msg("starting bridge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Store and registry
	ds, err := store.New(expandPath(cfg.SQLitePath), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer ds.Close()

	reg := registry.New(ds, logger)
	bindings := workflow.NewBindings(ds, logger)

	// Health checker
	checker := health.NewChecker(logger)
	checker.Register("store", func(ctx context.Context) health.Status {
		if err := ds.Ping(); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	// Sessions
	tmuxClient := tmux.NewClient()
	checker.Register("tmux", func(ctx context.Context) health.Status {
		if _, err := tmuxClient.ListSessions(); err != nil {
			return health.StatusDegraded
		}
		return health.StatusOK
	})

	sessions := session.NewController(reg, tmuxClient, session.Options{
		Prefix:       cfg.SessionPrefix,
		Command:      cfg.SessionCommand,
		Grace:        cfg.SessionGrace,
		CaptureLines: cfg.CaptureLines,
		Settle:       cfg.ResponseSettle,
		Deadline:     cfg.ResponseDeadline,
	}, logger)

	// Git and provisioning
	git := gitexec.New(gitexec.CLIRunner{}, cfg.GitBranch, cfg.GitTimeout, logger)

	var repos ghclient.RepoService
	if cfg.GitHubEnabled() {
		repos = ghclient.NewClient(cfg.GitHubToken, cfg.GitHubOwner, logger)
	} else {
		logger.Warn().Msg("GitHub not configured, provisioning will fail at repo creation")
	}
	provisioner := provision.New(git, repos, projectsDir, devDir, expandPath(cfg.TemplatesDir), cfg.ProvisionTimeout, logger)

	// Prompt templates
	lib, err := prompts.Default()
	if cfg.PromptsPath != "" {
		lib, err = prompts.Load(expandPath(cfg.PromptsPath))
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load prompt templates")
	}

	m := metrics.New()

	var wg sync.WaitGroup

	// Slack and the workflow engine
	var engine *workflow.Engine
	var workspace *slackpkg.Workspace
	if cfg.SlackEnabled() {
		handler := slackpkg.NewHandler(logger)
		app, err := slackpkg.NewApp(cfg.SlackBotToken, cfg.SlackAppToken, handler, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init Slack app")
		}
		workspace = slackpkg.NewWorkspace(app.API(), logger)
		engine = workflow.NewEngine(bindings, git, workspace, sessions, provisioner, lib, projectsDir, devDir, logger)
		br := bridgepkg.New(engine, sessions, workspace, bridgepkg.AllowUsers(cfg.AllowedUserList()), m, logger)
		handler.SetRouter(br)

		if botID, err := app.BotUserID(ctx); err == nil {
			handler.SetBotUserID(botID)
			logger.Info().Str("bot_user_id", botID).Msg("Slack bot identity resolved")
		} else {
			logger.Warn().Err(err).Msg("failed to resolve bot identity")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Slack app stopped")
			}
		}()
	} else {
		logger.Warn().Msg("Slack not configured, running in API-only mode")
		engine = workflow.NewEngine(bindings, git, noChat{}, sessions, provisioner, lib, projectsDir, devDir, logger)
	}

	// Management API
	handlers := api.NewHandlers(engine, sessions, logger)
	server := api.NewServer(api.ServerConfig{
		ListenAddr:  cfg.MgmtListenAddr,
		APIKey:      cfg.MgmtAPIKey,
		CORSOrigins: cfg.MgmtCORSOrigins,
	}, handlers, checker, m, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	<-sigCh
	logger.Info().Msg("shutdown signal received")
	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("failed to shut down management API")
	}
	wg.Wait()
	logger.Info().Msg("bridge stopped")
}

// noChat rejects stage transitions when no chat platform is wired; the
// API-only mode can inspect and kill sessions but cannot open threads.
type noChat struct{}

func (noChat) FindStageChannel(context.Context, string) (string, error) {
	return "", os.ErrNotExist
}

func (noChat) CreateThread(context.Context, string, string) (string, error) {
	return "", os.ErrNotExist
}

func (noChat) Send(context.Context, string, string, string) error {
	return os.ErrNotExist
}

// expandPath resolves a leading ~ against the user's home directory.
func expandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
