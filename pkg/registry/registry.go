// Package registry manages versioned prompt templates for model operations.
// Multiple versions per name are kept so prompt variations can be compared
// without redeploying.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Registry holds versioned prompt templates and resolves the active
// version per name. It is populated once at startup and read-only after,
// so lookups need no locking.
type Registry struct {
	active      map[string]Template
	allVersions map[string][]Template
}

// New creates a registry seeded with the built-in default prompts.
func New() *Registry {
	r := &Registry{
		active:      make(map[string]Template),
		allVersions: make(map[string][]Template),
	}
	r.loadDefaults()
	return r
}

// Register adds a template version. Registration is additive: existing
// versions are never replaced, a same-version re-register appends a new
// entry that wins resolution.
func (r *Registry) Register(t Template) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	r.allVersions[t.Name] = append(r.allVersions[t.Name], t)
	if t.Active {
		r.active[t.Name] = t
	}
}

// Resolve returns the template for name. An empty version returns the
// active version; a concrete version returns that exact registration.
func (r *Registry) Resolve(name, version string) (Template, error) {
	if version == "" {
		t, ok := r.active[name]
		if !ok {
			return Template{}, fmt.Errorf("prompt '%s' not found in registry", name)
		}
		return t, nil
	}

	versions, ok := r.allVersions[name]
	if !ok {
		return Template{}, fmt.Errorf("prompt '%s' not found in registry", name)
	}
	// Later registrations win on duplicate versions.
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Version == version {
			return versions[i], nil
		}
	}
	return Template{}, fmt.Errorf("prompt '%s' version '%s' not found in registry", name, version)
}

// ListPrompts returns all names with an active version, sorted.
func (r *Registry) ListPrompts() []string {
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListVersions returns all registered versions for a name in
// registration order.
func (r *Registry) ListVersions(name string) []string {
	versions := r.allVersions[name]
	out := make([]string, 0, len(versions))
	for _, t := range versions {
		out = append(out, t.Version)
	}
	return out
}

// LoadOverlay merges prompt overrides from a JSON file over the defaults.
func (r *Registry) LoadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read prompt overlay %s: %w", path, err)
	}
	var overlay Overlay
	if err := json.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse prompt overlay %s: %w", path, err)
	}
	for _, t := range overlay.Prompts {
		if t.Name == "" || t.Version == "" || t.Content == "" {
			return fmt.Errorf("prompt overlay %s: entries require name, version and content", path)
		}
		r.Register(t)
	}
	return nil
}

// Format substitutes {key} placeholders in the template content. Unknown
// placeholders are left as-is so a missing variable degrades instead of
// failing the call.
func (t Template) Format(vars map[string]string) string {
	out := t.Content
	for key, val := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", val)
	}
	return out
}
