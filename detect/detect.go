// Package detect works out which service the current checkout belongs to.
package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/iancoleman/strcase"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"

	"github.com/bpowers/ktme/changes"
	"github.com/bpowers/ktme/internal/logging"
	"github.com/bpowers/ktme/llm"
)

// UnknownService is returned when no strategy produces a usable name.
const UnknownService = "unknown-service"

// Strategy names how a service name was found.
type Strategy string

const (
	StrategyGit       Strategy = "git"
	StrategyManifest  Strategy = "manifest"
	StrategyDirectory Strategy = "directory"
	StrategyModel     Strategy = "model"
)

// Detector inspects a directory for a service name.
type Detector struct {
	dir    string
	model  llm.Generator
	logger *slog.Logger
}

type Option func(*Detector)

// WithModel enables asking a model when the heuristics come up empty.
func WithModel(g llm.Generator) Option {
	return func(d *Detector) {
		d.model = g
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// New returns a Detector rooted at dir. An empty dir means the working
// directory.
func New(dir string, opts ...Option) (*Detector, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	d := &Detector{
		dir:    abs,
		logger: logging.Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dir returns the directory being inspected.
func (d *Detector) Dir() string {
	return d.dir
}

// Detect returns a service name using the repository root, project
// manifests and finally the directory name.
func (d *Detector) Detect() (string, Strategy) {
	if root := d.repositoryRoot(); root != "" {
		name := normalize(filepath.Base(root))
		d.logger.Info("detected service name from git repository", "name", name)
		return name, StrategyGit
	}

	if name := d.fromManifests(); name != "" {
		d.logger.Info("detected service name from project manifest", "name", name)
		return name, StrategyManifest
	}

	name := normalize(filepath.Base(d.dir))
	if name == "" {
		name = UnknownService
	}
	d.logger.Info("using directory name as service", "name", name)
	return name, StrategyDirectory
}

// DetectWithFallback runs Detect and asks the model when the heuristic
// result does not look like a real service name.
func (d *Detector) DetectWithFallback(ctx context.Context) (string, Strategy, error) {
	name, strategy := d.Detect()
	if IsValid(name) {
		return name, strategy, nil
	}

	if d.model == nil {
		d.logger.Warn("no model configured for service name detection")
		return UnknownService, StrategyModel, nil
	}

	answer, err := d.model.Generate(ctx, d.prompt())
	if err != nil {
		return "", "", fmt.Errorf("model service detection failed: %w", err)
	}
	return parseAnswer(answer), StrategyModel, nil
}

// IsValid reports whether name looks like a real service name rather than
// a placeholder.
func IsValid(name string) bool {
	switch name {
	case "", UnknownService, "app", "project":
		return false
	}
	return len(name) >= 2 && len(name) <= 50
}

func normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return ""
	}
	return strcase.ToKebab(name)
}

func parseAnswer(answer string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(answer), "\n")
	line = strings.Trim(strings.TrimSpace(line), `"'`+"`")
	if line == "" {
		return UnknownService
	}
	return line
}

func (d *Detector) repositoryRoot() string {
	r, err := changes.Open(d.dir)
	if err != nil {
		return ""
	}
	return r.Root()
}

func (d *Detector) fromManifests() string {
	readers := []struct {
		file string
		read func(path string) (string, error)
	}{
		{"Cargo.toml", cargoName},
		{"package.json", packageJSONName},
		{"go.mod", goModName},
		{"pyproject.toml", pyprojectName},
	}

	for _, r := range readers {
		path := filepath.Join(d.dir, r.file)
		name, err := r.read(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				d.logger.Debug("unreadable project manifest", "path", path, "error", err)
			}
			continue
		}
		if name = normalize(name); name != "" {
			return name
		}
	}
	return ""
}

func cargoName(path string) (string, error) {
	var manifest struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
	}
	if _, err := toml.DecodeFile(path, &manifest); err != nil {
		return "", err
	}
	return manifest.Package.Name, nil
}

func pyprojectName(path string) (string, error) {
	var manifest struct {
		Project struct {
			Name string `toml:"name"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name string `toml:"name"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.DecodeFile(path, &manifest); err != nil {
		return "", err
	}
	if manifest.Project.Name != "" {
		return manifest.Project.Name, nil
	}
	return manifest.Tool.Poetry.Name, nil
}

func packageJSONName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var manifest struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", err
	}
	// "@scope/name" names the package "name".
	if i := strings.LastIndex(manifest.Name, "/"); i >= 0 {
		return manifest.Name[i+1:], nil
	}
	return manifest.Name, nil
}

func goModName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	modPath := modfile.ModulePath(data)
	if modPath == "" {
		return "", fmt.Errorf("%s has no module directive", path)
	}
	if prefix, _, ok := module.SplitPathVersion(modPath); ok {
		modPath = prefix
	}
	return modPath[strings.LastIndex(modPath, "/")+1:], nil
}

func (d *Detector) prompt() string {
	var sb strings.Builder

	if entries, err := os.ReadDir(d.dir); err == nil {
		sb.WriteString("Directory contents:\n")
		for i, e := range entries {
			if i == 10 {
				break
			}
			fmt.Fprintf(&sb, "  - %s\n", e.Name())
		}
	}

	for _, readme := range []string{"README.md", "README.txt", "README"} {
		data, err := os.ReadFile(filepath.Join(d.dir, readme))
		if err != nil {
			continue
		}
		lines := strings.SplitN(string(data), "\n", 6)
		if len(lines) > 5 {
			lines = lines[:5]
		}
		fmt.Fprintf(&sb, "\n%s preview:\n%s\n", readme, strings.Join(lines, "\n"))
		break
	}

	return fmt.Sprintf("Based on the following project context, determine the most appropriate service name. "+
		"The service name should be concise, descriptive, and suitable for documentation purposes.\n\n"+
		"Current directory: %s\n\nProject context:\n%s\n"+
		"Respond with ONLY the service name, nothing else. Use kebab-case if appropriate.",
		d.dir, sb.String())
}

// RepositoryInfo describes where the detector is looking.
type RepositoryInfo struct {
	CurrentDir string
	IsGit      bool
	Root       string
	Branch     string
}

// Repository reports the git repository, if any, containing the directory.
func (d *Detector) Repository() RepositoryInfo {
	info := RepositoryInfo{CurrentDir: d.dir}
	r, err := changes.Open(d.dir)
	if err != nil {
		return info
	}
	info.IsGit = true
	info.Root = r.Root()
	info.Branch = r.Branch()
	return info
}
