// Command ktme serves the documentation tools over the Model Context
// Protocol and talks to a running network-mode server.
//
// Usage:
//
//	ktme serve [--config path] [--transport stdio|http] [--host h] [--port n] [--db path]
//	ktme status [--addr host:port]
//	ktme stop [--addr host:port]
//	ktme tools [--config path]
//	ktme services [--config path] [--db path]
//	ktme mapping add|list|get|remove ...
//	ktme feature add <service> --name n ...
//	ktme history <service> [--limit n]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bpowers/ktme/changes"
	"github.com/bpowers/ktme/config"
	"github.com/bpowers/ktme/docs"
	"github.com/bpowers/ktme/internal/logging"
	"github.com/bpowers/ktme/llm"
	"github.com/bpowers/ktme/mcp"
	"github.com/bpowers/ktme/persistence"
	"github.com/bpowers/ktme/persistence/sqlitestore"
	"github.com/bpowers/ktme/tools"
)

const version = "0.1.0"

const instructions = "Tools for extracting code changes from git, generating service documentation and searching the service catalog."

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	cmd := os.Args[1]
	switch cmd {
	case "serve":
		err = runServe(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "status":
		err = runStatus(ctx, os.Args[2:], os.Stdout)
	case "stop":
		err = runStop(ctx, os.Args[2:], os.Stdout)
	case "tools":
		err = runTools(os.Args[2:], os.Stdout)
	case "services":
		err = runServices(os.Args[2:], os.Stdout)
	case "mapping":
		err = runMapping(os.Args[2:], os.Stdout)
	case "feature":
		err = runFeature(os.Args[2:], os.Stdout)
	case "history":
		err = runHistory(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ktme - documentation tools served over MCP

Usage:
  ktme serve [--config <path>] [--transport stdio|http] [--host <host>] [--port <n>] [--db <path>]
      Serve the tool catalog. stdio reads one JSON-RPC message per line
      from stdin; http listens for POST /mcp, GET /status and POST /shutdown.

  ktme status [--addr <host:port>]
      Show the status of a running http server

  ktme stop [--addr <host:port>]
      Ask a running http server to stop accepting connections

  ktme tools [--config <path>]
      List the tools the server exposes

  ktme services [--config <path>] [--db <path>]
      List the services in the catalog

  ktme mapping add <service> (--file <path> | --url <url>) [--type <t>] [--title <t>] [--section <s>]
  ktme mapping list [--service <name>]
  ktme mapping get <service>
  ktme mapping remove <service>
      Edit where each service is documented. add creates the service if needed;
      remove deletes the service with its mappings and features.

  ktme feature add <service> --name <n> [--description <d>] [--keywords a,b] [--relevance <w>]
      Record a feature a service owns, for search_by_feature and search_by_keyword

  ktme history <service> [--limit <n>]
      Show documentation generated for a service, newest first

  Catalog commands accept --config and --db and need a database.

The config file defaults to $KTME_CONFIG or ~/.config/ktme/config.yaml.

Examples:
  ktme serve
  ktme serve --transport http --port 3000
  ktme status --addr 127.0.0.1:3000
  ktme mapping add payments --file docs/payments.md
`)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, ok := logging.ParseLevel(cfg.General.LogLevel); ok && os.Getenv(logging.EnvVar) == "" {
		logging.SetLogLevel(level)
	}
	return cfg, nil
}

func openStore(path string) (persistence.Store, error) {
	if path == "" {
		return persistence.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	store, err := sqlitestore.New(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

// newModel returns the configured text generator, or nil when none is
// configured or it cannot be built. Documentation falls back to basic
// rendering without one.
func newModel(cfg *config.Config) llm.Generator {
	if cfg.AI.Model == "" {
		return nil
	}
	gen, err := llm.NewGenerator(&llm.Config{
		Model:       cfg.AI.Model,
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logging.Logger().Warn("model unavailable, using basic documentation", "model", cfg.AI.Model, "error", err)
		return nil
	}
	return gen
}

func newServer(cfg *config.Config, store persistence.Store) (*mcp.Server, error) {
	workDir, err := filepath.Abs(cfg.Git.Repository)
	if err != nil {
		return nil, fmt.Errorf("resolve repository: %w", err)
	}

	registry, err := tools.NewRegistry(tools.Deps{
		Store:         store,
		Generator:     docs.NewGenerator(docs.WithModel(newModel(cfg))),
		Writer:        docs.NewWriter(docs.OSFS{Root: cfg.Docs.BasePath}),
		WorkDir:       workDir,
		TempDir:       cfg.General.TempDirectory,
		DefaultFormat: cfg.Docs.DefaultFormat,
		GitOptions: []changes.Option{
			changes.WithMaxCommitRange(cfg.Git.MaxCommitRange),
			changes.WithMergeCommits(cfg.Git.IncludeMergeCommits),
		},
	})
	if err != nil {
		return nil, err
	}

	return mcp.NewServer(registry,
		mcp.Implementation{Name: cfg.Server.Name, Version: version},
		mcp.WithInstructions(instructions),
		mcp.WithNullIDAsNotification(cfg.Server.NullIDIsNotification))
}

func runServe(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	transport := fs.String("transport", "", "transport: stdio or http (default from config)")
	host := fs.String("host", "", "http listen host (default from config)")
	port := fs.Int("port", 0, "http listen port (default from config)")
	dbPath := fs.String("db", "", "path to SQLite database (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *transport != "" {
		cfg.Server.Transport = config.Transport(*transport)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.Database = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := openStore(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	server, err := newServer(cfg, store)
	if err != nil {
		return err
	}

	logger := logging.Logger()
	logger.Info("starting server", "name", cfg.Server.Name, "version", version, "transport", cfg.Server.Transport)

	if cfg.Server.Transport == config.TransportStdio {
		err := server.Serve(ctx, stdin, stdout)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			logger.Info("stopped", "reason", ctxErr)
			return nil
		}
		return err
	}

	h, err := mcp.NewHTTPServer(server,
		mcp.WithPollInterval(cfg.Server.PollInterval),
		mcp.WithIOTimeout(cfg.Server.IOTimeout),
		mcp.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))
	if err != nil {
		return err
	}
	context.AfterFunc(ctx, h.Shutdown)

	fmt.Fprintf(stdout, "ktme listening on http://%s\n", cfg.Server.Addr())
	return h.ListenAndServe(ctx, cfg.Server.Addr())
}

var client = &http.Client{Timeout: 10 * time.Second}

func defaultAddr() string {
	return config.Default().Server.Addr()
}

// call issues a request against a running server and decodes the JSON body into v.
func call(ctx context.Context, method, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("contact server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: unexpected status %s", method, url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runStatus(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", defaultAddr(), "address of a running http server")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var status struct {
		Status     string `json:"status"`
		Version    string `json:"version"`
		ServerName string `json:"server_name"`
		ToolsCount int    `json:"tools_count"`
	}
	if err := call(ctx, http.MethodGet, "http://"+*addr+"/status", &status); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Server:  %s\n", status.ServerName)
	fmt.Fprintf(stdout, "Version: %s\n", status.Version)
	fmt.Fprintf(stdout, "Status:  %s\n", status.Status)
	fmt.Fprintf(stdout, "Tools:   %d\n", status.ToolsCount)
	return nil
}

func runStop(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	addr := fs.String("addr", defaultAddr(), "address of a running http server")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var result struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := call(ctx, http.MethodPost, "http://"+*addr+"/shutdown", &result); err != nil {
		return err
	}

	fmt.Fprintln(stdout, result.Message)
	return nil
}

func runTools(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("tools", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// Listing tools needs no model or database.
	cfg.AI.Model = ""

	server, err := newServer(cfg, persistence.NewMemoryStore())
	if err != nil {
		return err
	}

	for _, def := range server.Registry().Definitions() {
		fmt.Fprintf(stdout, "%-34s %s\n", def.Name, def.Description)
	}
	return nil
}

func runServices(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("services", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "path to SQLite database (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.Storage.Database = *dbPath
	}

	store, err := openStore(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	services, err := store.ListServices()
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}
	if len(services) == 0 {
		fmt.Fprintln(os.Stderr, "no services found")
		return nil
	}

	for _, svc := range services {
		mapping, err := store.GetMapping(svc.Name)
		if err != nil {
			return fmt.Errorf("get mapping for %s: %w", svc.Name, err)
		}
		fmt.Fprintf(stdout, "%s\n", svc.Name)
		if svc.Path != "" {
			fmt.Fprintf(stdout, "  path: %s\n", svc.Path)
		}
		for _, d := range mapping.Docs {
			fmt.Fprintf(stdout, "  %s: %s\n", d.Type, d.Location)
		}
	}
	return nil
}
