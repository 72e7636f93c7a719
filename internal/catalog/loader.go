package catalog

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/terra-clan/part-configurator/internal/models"
)

// schemaPattern matches schema files at any depth
const schemaPattern = "**/*.{yaml,yml}"

// Loader reads schema definitions from YAML files into a registry
type Loader struct {
	registry *Registry
}

// NewLoader creates a loader that registers into registry
func NewLoader(registry *Registry) *Loader {
	return &Loader{registry: registry}
}

// LoadFromDir loads every schema file under dir. A broken file is logged and
// skipped; the rest still load.
func (l *Loader) LoadFromDir(dir string) (int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, fmt.Errorf("schemas dir: %w", err)
	}
	return l.LoadFromFS(os.DirFS(dir))
}

// LoadFromFS loads every schema file in fsys
func (l *Loader) LoadFromFS(fsys fs.FS) (int, error) {
	files, err := doublestar.Glob(fsys, schemaPattern)
	if err != nil {
		return 0, fmt.Errorf("failed to glob schema files: %w", err)
	}

	loaded := 0
	for _, file := range files {
		s, err := ParseFile(fsys, file)
		if err != nil {
			slog.Warn("failed to load schema", "file", file, "error", err)
			continue
		}
		if err := l.registry.Register(s); err != nil {
			slog.Warn("failed to register schema", "file", file, "error", err)
			continue
		}
		loaded++
		slog.Info("schema loaded", "id", s.ID, "file", file, "parameters", len(s.Parameters))
	}

	slog.Info("schemas loaded", "count", loaded, "total_files", len(files))
	return loaded, nil
}

// ParseFile reads and validates one schema file
func ParseFile(fsys fs.FS, name string) (*models.Schema, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML schema definition
func Parse(data []byte) (*models.Schema, error) {
	var def models.SchemaDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Unset kinds default to a plain field of the declared type
	for i := range def.Parameters {
		p := &def.Parameters[i]
		if p.ValueType == "" {
			p.ValueType = models.ValueString
		}
		if p.InputKind == "" {
			switch {
			case len(p.Options) > 0:
				p.InputKind = models.InputSelect
			case p.ValueType == models.ValueNumber:
				p.InputKind = models.InputNumber
			default:
				p.InputKind = models.InputText
			}
		}
	}

	return models.NewSchema(def)
}
