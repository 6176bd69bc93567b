// Package templates loads starter form layouts from YAML.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/models"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// ErrNotFound is returned for an unknown template name.
var ErrNotFound = errors.New("template not found")

// Template is a named list of fields placed in order on a new form.
type Template struct {
	Name        string          `yaml:"name" json:"name"`
	Title       string          `yaml:"title" json:"title"`
	Description string          `yaml:"description" json:"description"`
	Fields      []form.NewField `yaml:"fields" json:"fields"`
}

// Summary is the listing view of a template.
type Summary struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FieldCount  int    `json:"fieldCount"`
}

// Registry holds templates by name.
type Registry struct {
	byName map[string]*Template
}

// Load reads the built-in templates, then every *.yaml/*.yml in customDir.
// Custom templates replace built-ins of the same name. An empty customDir
// loads only the built-ins.
func Load(customDir string) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Template)}

	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("reading built-in templates: %w", err)
	}
	for _, e := range entries {
		f, err := builtinFS.Open("builtin/" + e.Name())
		if err != nil {
			return nil, err
		}
		t, err := ParseFromReader(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("built-in template %s: %w", e.Name(), err)
		}
		r.byName[t.Name] = t
	}

	if customDir == "" {
		return r, nil
	}
	err = filepath.WalkDir(customDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}
		t, err := ParseFile(path)
		if err != nil {
			return fmt.Errorf("template %s: %w", path, err)
		}
		r.byName[t.Name] = t
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return r, nil
}

// ParseFile parses one YAML template file.
func ParseFile(path string) (*Template, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseFromReader(file)
}

// ParseFromReader parses a template from an io.Reader. A missing name is
// an error; field types are checked against the known set.
func ParseFromReader(r io.Reader) (*Template, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return nil, errors.New("template has no name")
	}
	for i, f := range t.Fields {
		if !f.Type.Valid() {
			return nil, fmt.Errorf("field %d: %w: %q", i, form.ErrUnknownFieldType, f.Type)
		}
	}
	return &t, nil
}

// List returns template summaries sorted by name.
func (r *Registry) List() []Summary {
	out := make([]Summary, 0, len(r.byName))
	for _, t := range r.byName {
		out = append(out, Summary{
			Name:        t.Name,
			Title:       t.Title,
			Description: t.Description,
			FieldCount:  len(t.Fields),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the named template.
func (r *Registry) Get(name string) (*Template, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Instantiate builds a definition from the named template. Fields are added
// in template order, each at the first free slot of the root frame. An empty
// title uses the template's title.
func (r *Registry) Instantiate(m *form.Model, name, id, title string) (models.FormDefinition, error) {
	t, ok := r.byName[name]
	if !ok {
		return models.FormDefinition{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if title == "" {
		title = t.Title
	}

	def, err := m.NewDefinition(id, title)
	if err != nil {
		return models.FormDefinition{}, err
	}
	for _, nf := range t.Fields {
		def, _, err = m.AddField(def, nf)
		if err != nil {
			return models.FormDefinition{}, fmt.Errorf("template %s: %w", name, err)
		}
	}
	return def, nil
}
