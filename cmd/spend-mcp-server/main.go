package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lox/spend-advisor/internal/commands"
	"github.com/lox/spend-advisor/internal/extractor"
	"github.com/lox/spend-advisor/internal/insights"
	"github.com/lox/spend-advisor/internal/mcp"
	"github.com/lox/spend-advisor/internal/session"
)

type CLI struct {
	commands.CommonConfig
	commands.LLMConfig

	NoLLM bool `help:"Serve only the extraction tools" default:"false" env:"SPEND_NO_LLM"`
}

func (c *CLI) Run() error {
	// stdout carries the MCP protocol
	logger, err := commands.SetupLogger(os.Stderr, c.CommonConfig)
	if err != nil {
		return err
	}

	profile, err := commands.Profile(c.Profile)
	if err != nil {
		return err
	}

	var analyzer mcp.Analyzer
	if !c.NoLLM {
		provider, err := commands.SetupProvider(context.Background(), c.LLMConfig, logger)
		if err != nil {
			return err
		}
		defer commands.CloseProvider(provider, logger)

		config := insights.DefaultConfig()
		config.CorrectionAttempts = c.CorrectionAttempts
		analyzer = insights.NewOrchestrator(
			provider,
			session.NewMemoryStore(),
			session.NewLocker(0),
			nil,
			extractor.New(profile, logger),
			logger,
			config,
		)
	}

	return mcp.New(commands.Profiles(), profile.Name(), analyzer, logger).Run()
}

func main() {
	if err := commands.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("spend-mcp-server"),
		kong.Description("MCP server exposing bank export extraction and spending analysis"),
		kong.UsageOnError(),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
