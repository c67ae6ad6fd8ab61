package space

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template describes a space layout preset: its display name and where
// members spawn on join.
type Template struct {
	Key   string
	Name  string
	Spawn Position
}

// yamlTemplateFile is the top-level YAML structure for template files.
type yamlTemplateFile struct {
	Template yamlTemplate `yaml:"template"`
}

type yamlTemplate struct {
	Key   string `yaml:"key"`
	Name  string `yaml:"name"`
	Spawn struct {
		X float64 `yaml:"x"`
		Y float64 `yaml:"y"`
	} `yaml:"spawn"`
}

// Templates is an immutable lookup of space templates by key.
type Templates struct {
	byKey map[string]Template
}

// LoadTemplatesFromDir reads every .yaml/.yml file in dir as a template.
// An empty dir path yields an empty (but usable) Templates.
//
// Postcondition: Returns a Templates or a non-nil error; duplicate keys are
// an error.
func LoadTemplatesFromDir(dir string) (*Templates, error) {
	t := &Templates{byKey: make(map[string]Template)}
	if dir == "" {
		return t, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading templates dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		tmpl, err := loadTemplateFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, exists := t.byKey[tmpl.Key]; exists {
			return nil, fmt.Errorf("duplicate template key %q in %s", tmpl.Key, entry.Name())
		}
		t.byKey[tmpl.Key] = tmpl
	}

	return t, nil
}

func loadTemplateFile(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("reading template file %s: %w", path, err)
	}

	var file yamlTemplateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Template{}, fmt.Errorf("parsing template file %s: %w", path, err)
	}
	if file.Template.Key == "" {
		return Template{}, fmt.Errorf("template file %s: key must not be empty", path)
	}

	return Template{
		Key:  file.Template.Key,
		Name: file.Template.Name,
		Spawn: Position{
			X: file.Template.Spawn.X,
			Y: file.Template.Spawn.Y,
		},
	}, nil
}

// Len returns the number of loaded templates.
func (t *Templates) Len() int {
	return len(t.byKey)
}

// Lookup returns the template for the given key.
func (t *Templates) Lookup(key string) (Template, bool) {
	tmpl, ok := t.byKey[key]
	return tmpl, ok
}

// SpawnFor returns the spawn position for the given template key, falling
// back to DefaultSpawn when the key is unknown or empty.
func (t *Templates) SpawnFor(key string) Position {
	if tmpl, ok := t.byKey[key]; ok {
		return tmpl.Spawn
	}
	return DefaultSpawn
}
