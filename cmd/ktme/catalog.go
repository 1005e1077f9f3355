package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bpowers/ktme/persistence"
)

// openCatalog loads the config and opens the configured database. Catalog
// edits need somewhere durable to land, so an empty database path is an
// error here rather than an in-memory store.
func openCatalog(configPath, dbPath string) (persistence.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Storage.Database = dbPath
	}
	if cfg.Storage.Database == "" {
		return nil, fmt.Errorf("no database configured: set storage.database or pass --db")
	}
	return openStore(cfg.Storage.Database)
}

// parseWithService parses args where the service name is the first
// positional argument, given either before or after the flags.
func parseWithService(fs *flag.FlagSet, args []string) (string, error) {
	var service string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		service, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if service == "" {
		service = fs.Arg(0)
	}
	if service == "" {
		return "", fmt.Errorf("%s: service name is required", fs.Name())
	}
	return service, nil
}

func runMapping(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("mapping: expected add, list, get or remove")
	}
	switch args[0] {
	case "add":
		return runMappingAdd(args[1:], stdout)
	case "list":
		return runMappingList(args[1:], stdout)
	case "get":
		return runMappingGet(args[1:], stdout)
	case "remove":
		return runMappingRemove(args[1:], stdout)
	default:
		return fmt.Errorf("mapping: unknown subcommand %q", args[0])
	}
}

func runMappingAdd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("mapping add", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "path to SQLite database (default from config)")
	file := fs.String("file", "", "path of a documentation file")
	url := fs.String("url", "", "URL of a documentation page")
	docType := fs.String("type", "", "document type (default markdown for --file, url for --url)")
	title := fs.String("title", "", "document title")
	section := fs.String("section", "", "section within the document")
	path := fs.String("path", "", "service source path, used when the service is new")
	description := fs.String("description", "", "service description, used when the service is new")
	service, err := parseWithService(fs, args)
	if err != nil {
		return err
	}

	var location, kind string
	switch {
	case *file != "" && *url != "":
		return fmt.Errorf("mapping add: --file and --url are mutually exclusive")
	case *file != "":
		location, kind = *file, "markdown"
	case *url != "":
		location, kind = *url, "url"
	default:
		return fmt.Errorf("mapping add: one of --file or --url is required")
	}
	if *docType != "" {
		kind = *docType
	}

	store, err := openCatalog(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = store.GetService(service)
	if errors.Is(err, persistence.ErrNotFound) {
		_, err = store.CreateService(persistence.Service{Name: service, Path: *path, Description: *description})
		if err == nil {
			fmt.Fprintf(stdout, "Created service %s\n", service)
		}
	}
	if err != nil {
		return fmt.Errorf("mapping add: %w", err)
	}

	if _, err := store.AddMapping(service, persistence.DocumentMapping{
		DocType:  kind,
		Location: location,
		Title:    *title,
		Section:  *section,
	}); err != nil {
		return fmt.Errorf("mapping add: %w", err)
	}
	fmt.Fprintf(stdout, "Mapped %s to %s (%s)\n", service, location, kind)
	return nil
}

func runMappingList(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("mapping list", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "path to SQLite database (default from config)")
	only := fs.String("service", "", "only list this service")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openCatalog(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	names := []string{*only}
	if *only == "" {
		services, err := store.ListServices()
		if err != nil {
			return fmt.Errorf("list services: %w", err)
		}
		names = names[:0]
		for _, svc := range services {
			names = append(names, svc.Name)
		}
	}

	for _, name := range names {
		docs, err := store.Documents(name)
		if err != nil {
			return fmt.Errorf("mapping list: %s: %w", name, err)
		}
		for _, d := range docs {
			fmt.Fprintf(stdout, "%s\t%s\t%s", name, d.DocType, d.Location)
			if d.Title != "" {
				fmt.Fprintf(stdout, "\t%s", d.Title)
			}
			fmt.Fprintln(stdout)
		}
	}
	return nil
}

func runMappingGet(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("mapping get", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "path to SQLite database (default from config)")
	service, err := parseWithService(fs, args)
	if err != nil {
		return err
	}

	store, err := openCatalog(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	mapping, err := store.GetMapping(service)
	if err != nil {
		return fmt.Errorf("mapping get: %w", err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(mapping)
}

func runMappingRemove(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("mapping remove", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "path to SQLite database (default from config)")
	service, err := parseWithService(fs, args)
	if err != nil {
		return err
	}

	store, err := openCatalog(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteService(service); err != nil {
		return fmt.Errorf("mapping remove: %w", err)
	}
	fmt.Fprintf(stdout, "Removed %s\n", service)
	return nil
}

func runFeature(args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] != "add" {
		return fmt.Errorf("feature: expected add")
	}

	fs := flag.NewFlagSet("feature add", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "path to SQLite database (default from config)")
	name := fs.String("name", "", "feature name")
	description := fs.String("description", "", "feature description")
	keywords := fs.String("keywords", "", "comma-separated search keywords")
	relevance := fs.Float64("relevance", 1.0, "search weight for the feature")
	service, err := parseWithService(fs, args[1:])
	if err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("feature add: --name is required")
	}

	var words []string
	for _, w := range strings.Split(*keywords, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}

	store, err := openCatalog(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.AddFeature(service, persistence.Feature{
		Name:        *name,
		Description: *description,
		Keywords:    words,
		Relevance:   *relevance,
	}); err != nil {
		return fmt.Errorf("feature add: %w", err)
	}
	fmt.Fprintf(stdout, "Added feature %s to %s\n", *name, service)
	return nil
}

func runHistory(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "path to SQLite database (default from config)")
	limit := fs.Int("limit", 0, "show at most this many entries (0 for all)")
	service, err := parseWithService(fs, args)
	if err != nil {
		return err
	}

	store, err := openCatalog(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	gens, err := store.Generations(service)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if *limit > 0 && len(gens) > *limit {
		gens = gens[:*limit]
	}
	for _, g := range gens {
		location := g.Location
		if location == "" {
			location = "-"
		}
		fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\t%s\n",
			g.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), g.Format, g.Provider, strconv.Quote(g.Source), location)
	}
	return nil
}
