package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lox/spend-advisor/internal/commands"
	"github.com/lox/spend-advisor/internal/extractor"
	"github.com/lox/spend-advisor/internal/types"
)

type CLI struct {
	commands.CommonConfig

	File  string `arg:"" help:"Path to a bank CSV export" type:"existingfile"`
	Top   int    `help:"Number of recent transactions to print, 0 prints all" default:"10"`
	Quiet bool   `help:"Only print category totals" default:"false"`
}

type output struct {
	Profile         string                    `json:"profile"`
	Total           int                       `json:"total"`
	Skipped         int                       `json:"skipped"`
	Degraded        bool                      `json:"degraded"`
	Error           string                    `json:"error,omitempty"`
	TopTransactions []types.TransactionRecord `json:"top_transactions,omitempty"`
	CategoryTotals  []types.CategoryTotal     `json:"category_totals"`
}

func (c *CLI) Run() error {
	logger, err := commands.SetupLogger(os.Stderr, c.CommonConfig)
	if err != nil {
		return err
	}

	profile, err := commands.Profile(c.Profile)
	if err != nil {
		return err
	}
	ex := extractor.New(profile, logger)

	extraction := ex.Extract(context.Background(), c.File)
	out := output{
		Profile:        profile.Name(),
		Total:          extraction.Total,
		Skipped:        extraction.Skipped,
		Degraded:       extraction.Degraded(),
		CategoryTotals: ex.Summarize(extraction.Transactions),
	}
	if extraction.Err != nil {
		out.Error = extraction.Err.Error()
	}
	if !c.Quiet {
		out.TopTransactions = extraction.Top(c.Top)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	logger.Info("Extracted transactions",
		"file", c.File,
		"total", extraction.Total,
		"skipped", extraction.Skipped)
	return nil
}

func main() {
	if err := commands.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("spend-extract"),
		kong.Description("Print the most recent transactions and category totals of a bank export"),
		kong.UsageOnError(),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
