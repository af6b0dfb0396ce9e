package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/hpungsan/dumbledore/internal/config"
	"github.com/hpungsan/dumbledore/internal/db"
	"github.com/hpungsan/dumbledore/internal/embed"
	"github.com/hpungsan/dumbledore/internal/llm"
	"github.com/hpungsan/dumbledore/internal/mcp"
	"github.com/hpungsan/dumbledore/internal/ops"
	"github.com/hpungsan/dumbledore/internal/source"
	"github.com/hpungsan/dumbledore/internal/vector"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"sync": true, "chat": true, "ask": true, "search": true,
	"notes": true, "stats": true, "profile": true, "conversations": true,
	"clear": true, "style": true, "export": true, "web": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___              _    _        _
  |   \ _  _ _ __ | |__| |___ __| |___ _ _ ___
  | |) | || | '  \| '_ \ / -_) _' / _ \ '_/ -_)
  |___/ \_,_|_|_|_|_.__/_\___\__,_\___/_| \___|

  Personal knowledge advisor over your notes

  Usage: dumbledore <command> [options]
         dumbledore --help

  MCP server mode requires piped input.`)
}

// baseDir returns the data directory, honoring DUMBLEDORE_HOME.
func baseDir() (string, error) {
	if dir := os.Getenv("DUMBLEDORE_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".dumbledore"), nil
}

// buildEnv wires the operation environment from config: vector backend,
// embedder, LLM provider, and the configured sync sources.
func buildEnv(database *sql.DB, cfg *config.Config, dir string) (*ops.Env, error) {
	var store vector.Store
	switch cfg.VectorBackend {
	case "sqlite", "":
		s, err := vector.NewSQLite(database)
		if err != nil {
			return nil, fmt.Errorf("open sqlite vector store: %w", err)
		}
		store = s
	case "chroma":
		s, err := vector.NewChroma(cfg.ChromaURL, vector.DefaultCollection)
		if err != nil {
			return nil, fmt.Errorf("connect to chroma at %s: %w", cfg.ChromaURL, err)
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown vector backend %q (want sqlite or chroma)", cfg.VectorBackend)
	}

	var client llm.Client
	switch cfg.LLMProvider {
	case "claude", "":
		client = llm.NewClaude(cfg.ClaudeBin, time.Duration(cfg.LLMTimeoutSecs)*time.Second)
	case "ollama":
		c, err := llm.NewOllamaChat(cfg.OllamaURL, cfg.LLMModel)
		if err != nil {
			return nil, fmt.Errorf("connect to ollama at %s: %w", cfg.OllamaURL, err)
		}
		client = c
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want claude or ollama)", cfg.LLMProvider)
	}

	sources := []source.Source{source.NewApple()}
	if cfg.MarkdownDir != "" {
		sources = append(sources, source.NewMarkdown(cfg.MarkdownDir))
	}
	if cfg.LumifyExportDir != "" {
		sources = append(sources, source.NewLumify(cfg.LumifyExportDir))
	}

	return &ops.Env{
		DB:       database,
		Store:    store,
		Embedder: embed.NewOllama(cfg.OllamaURL, cfg.EmbedModel),
		LLM:      client,
		Sources:  sources,
		Config:   cfg,
		BaseDir:  dir,
	}, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// A .env in the working directory or the data dir feeds DUMBLEDORE_*
	// overrides; variables already set in the environment win.
	_ = godotenv.Load()

	dir, err := baseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	database, err := db.Init(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	cwd, err := os.Getwd()
	if err != nil {
		cwd = dir
	}
	cfg, err := config.LoadWithRepo(dir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	db.ConfigurePool(database, cfg)

	env, err := buildEnv(database, cfg, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		env.Out = os.Stdout
		app := newCLIApp(env)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'dumbledore --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default). Stdout carries the protocol, so progress
	// lines go to stderr.
	env.Out = os.Stderr
	if err := mcp.Run(env, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
