package plan

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/compose-network/contract-deployer/internal/failure"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

var ErrUnknownTemplate = errors.New("unknown plan template")

// TemplateNames lists the built-in plan templates.
func TemplateNames() []string {
	entries, err := fs.ReadDir(templatesFS, "templates")
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// LoadTemplate returns the built-in template called name.
func LoadTemplate(name string) (Template, error) {
	data, err := templatesFS.ReadFile(path.Join("templates", name+".yaml"))
	if err != nil {
		return Template{}, failure.Configuration(fmt.Sprintf("plan template '%s'", name), ErrUnknownTemplate)
	}
	return ParseTemplate(data)
}

// ReadTemplate parses a template from a YAML file on disk.
func ReadTemplate(file string) (Template, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Template{}, failure.Configuration(fmt.Sprintf("plan file '%s'", file), err)
	}
	return ParseTemplate(data)
}

func ParseTemplate(data []byte) (Template, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var t Template
	if err := decoder.Decode(&t); err != nil {
		return Template{}, failure.Configuration("failed to parse plan template", err)
	}
	if len(t.Artifacts) == 0 && len(t.Actions) == 0 {
		return Template{}, failure.Configuration(fmt.Sprintf("plan template '%s' is empty", t.Name), nil)
	}
	return t, nil
}

// LoadTemplates loads the built-in templates called names and merges them in
// order into one template.
func LoadTemplates(names []string) (Template, error) {
	if len(names) == 0 {
		return Template{}, failure.Configuration("plan templates", errors.New("no template named"))
	}

	templates := make([]Template, 0, len(names))
	for _, name := range names {
		t, err := LoadTemplate(name)
		if err != nil {
			return Template{}, err
		}
		templates = append(templates, t)
	}
	return Merge(templates...), nil
}

// Merge concatenates templates in order. Step names must stay unique across
// them, which plan validation checks.
func Merge(templates ...Template) Template {
	names := make([]string, 0, len(templates))
	merged := Template{}
	for _, t := range templates {
		names = append(names, t.Name)
		merged.Artifacts = append(merged.Artifacts, t.Artifacts...)
		merged.Actions = append(merged.Actions, t.Actions...)
	}
	merged.Name = strings.Join(names, "+")
	return merged
}
