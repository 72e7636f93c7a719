// Package preview computes what a 3D viewer needs to show a configured part:
// the model asset URL and the scale vector.
package preview

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/terra-clan/part-configurator/internal/models"
)

// Resolver builds viewer payloads and checks model assets on disk
type Resolver struct {
	modelsDir string
	baseURL   string

	mu    sync.Mutex
	cache map[string]cachedInfo
}

type cachedInfo struct {
	modTime time.Time
	info    *ModelInfo
	err     error
}

// NewResolver creates a resolver. An empty modelsDir disables asset checks;
// baseURL is prefixed to each schema's model path.
func NewResolver(modelsDir, baseURL string) *Resolver {
	return &Resolver{
		modelsDir: modelsDir,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		cache:     make(map[string]cachedInfo),
	}
}

// Enabled reports whether model assets are checked on disk
func (r *Resolver) Enabled() bool {
	return r.modelsDir != ""
}

// Payload returns the viewer contract for schema and form. A missing or
// unreadable asset sets Fallback instead of failing.
func (r *Resolver) Payload(schema *models.Schema, form models.FormState) models.ViewerPayload {
	p := models.ViewerPayload{
		ModelURL: r.baseURL + schema.ModelPath,
		Scale:    ComputeScale(schema, form),
	}

	if schema.ModelPath == "" {
		p.Fallback = true
		p.Reason = "schema has no model"
		return p
	}
	if r.modelsDir == "" {
		return p
	}

	if _, err := r.Inspect(schema.ModelPath); err != nil {
		p.Fallback = true
		p.Reason = err.Error()
	}
	return p
}

// Inspect returns the asset summary for a schema model path. Results are
// cached until the file's modification time changes.
func (r *Resolver) Inspect(modelPath string) (*ModelInfo, error) {
	path := filepath.Join(r.modelsDir, filepath.FromSlash(strings.TrimPrefix(modelPath, "/")))

	st, err := os.Stat(path)
	if err != nil {
		slog.Debug("model asset missing", "path", path, "error", err)
		return nil, err
	}

	r.mu.Lock()
	c, ok := r.cache[path]
	r.mu.Unlock()
	if ok && c.modTime.Equal(st.ModTime()) {
		return c.info, c.err
	}

	info, err := InspectFile(path)
	if err != nil {
		slog.Warn("model asset is not a valid GLB", "path", path, "error", err)
	}

	r.mu.Lock()
	r.cache[path] = cachedInfo{modTime: st.ModTime(), info: info, err: err}
	r.mu.Unlock()

	return info, err
}
