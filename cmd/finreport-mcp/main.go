package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/odyssey-erp/finreport/internal/app"
	"github.com/odyssey-erp/finreport/internal/finreport"
	"github.com/odyssey-erp/finreport/internal/mcptools"
)

func main() {
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the MCP protocol
	logger := app.NewLoggerTo(os.Stderr, cfg)

	source, closer, err := app.NewLedgerSource(cfg, nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open ledger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	store := finreport.NewFileStore(cfg.TemplateDir, "")
	generator := finreport.NewGenerator(finreport.GeneratorConfig{
		Source:  source,
		Store:   store,
		Workers: cfg.AggregateWorkers,
		Logger:  logger,
	})

	s := server.NewMCPServer(
		"finreport",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	mcptools.RegisterTools(s, mcptools.Deps{Templates: store, Generator: generator})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
