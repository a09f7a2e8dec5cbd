package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lox/spend-advisor/internal/commands"
	"github.com/lox/spend-advisor/internal/extractor"
	"github.com/lox/spend-advisor/internal/insights"
	"github.com/lox/spend-advisor/internal/server"
	"github.com/lox/spend-advisor/internal/session"
)

type CLI struct {
	commands.CommonConfig
	commands.LLMConfig
	commands.SessionConfig
	commands.MemoryConfig

	Listen         string        `help:"Address to listen on" default:":5000" env:"LISTEN"`
	TempDir        string        `help:"Directory uploads are staged in" type:"path" env:"SPEND_TEMP_DIR"`
	MaxUploadBytes int64         `help:"Largest accepted upload in bytes" default:"10485760" env:"MAX_UPLOAD_BYTES"`
	RequestTimeout time.Duration `help:"Timeout for a whole request" default:"3m" env:"REQUEST_TIMEOUT"`
	Top            int           `help:"Number of recent transactions returned by /analyze_spending" default:"10" env:"SPEND_TOP"`
}

func (c *CLI) Run() error {
	logger, err := commands.SetupLogger(os.Stderr, c.CommonConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profile, err := commands.Profile(c.Profile)
	if err != nil {
		return err
	}
	ex := extractor.New(profile, logger)

	provider, err := commands.SetupProvider(ctx, c.LLMConfig, logger)
	if err != nil {
		return err
	}
	defer commands.CloseProvider(provider, logger)

	store, closeStore, err := commands.SetupSessionStore(ctx, c.SessionConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	index, err := commands.SetupMemory(c.MemoryConfig, provider, logger)
	if err != nil {
		return err
	}

	locker := session.NewLocker(c.SessionLockTimeout)
	config := insights.DefaultConfig()
	config.CorrectionAttempts = c.CorrectionAttempts
	orchestrator := insights.NewOrchestrator(
		provider,
		store,
		locker,
		index,
		ex,
		logger,
		config,
	)

	sweeper := session.NewSweeper(store, locker, c.SessionTTL, orchestrator.Expire, logger)
	go sweeper.Run(ctx)

	serverConfig := server.DefaultConfig()
	serverConfig.Listen = c.Listen
	if c.TempDir != "" {
		serverConfig.TempDir = c.TempDir
	}
	serverConfig.MaxUploadBytes = c.MaxUploadBytes
	serverConfig.RequestTimeout = c.RequestTimeout
	serverConfig.Top = c.Top

	srv, err := server.New(ex, orchestrator, logger, serverConfig)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Spend advisor ready",
		"profile", profile.Name(),
		"provider", provider.Name(),
		"memory", index != nil,
		"session_ttl", c.SessionTTL)

	return srv.ListenAndServe(ctx)
}

func main() {
	if err := commands.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("spend-server"),
		kong.Description("HTTP API that turns bank exports into spending advice"),
		kong.UsageOnError(),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
