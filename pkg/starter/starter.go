package starter

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var catalogYAML []byte

//go:embed bundles/*.xml
var bundleFS embed.FS

// BasePrompt is sent ahead of the starter context for templates with a UI.
const BasePrompt = "For all designs I ask you to make, have them be beautiful, not cookie cutter. Make webpages that are fully featured and worthy for production.\n\n" +
	"By default, this template supports JSX syntax with Tailwind CSS classes, React hooks, and Lucide React for icons. Do not install other packages for UI themes, icons, etc unless absolutely necessary or I request them.\n\n" +
	"Use icons from lucide-react for logos.\n\n" +
	"Use stock photos from unsplash where appropriate, only valid URLs you know exist. Do not download the images, only link to them in image tags.\n\n"

const contextPromptFormat = "Here is an artifact that contains all files of the project visible to you.\n" +
	"Consider the contents of ALL files in the project.\n\n" +
	"%s\n\n" +
	"Here is a list of files that exist on the file system but are not being shown to you:\n\n" +
	"  - .gitignore\n" +
	"  - package-lock.json\n"

type Command struct {
	Name string   `yaml:"name" json:"name"`
	Args []string `yaml:"args" json:"args"`
}

type Template struct {
	ID                 string  `yaml:"id" json:"id"`
	IncludesBasePrompt bool    `yaml:"includesBasePrompt" json:"includesBasePrompt"`
	Bundle             string  `yaml:"bundle" json:"-"`
	Install            Command `yaml:"install" json:"install"`
	Dev                Command `yaml:"dev" json:"dev"`
	ReadyPorts         []int   `yaml:"readyPorts" json:"readyPorts"`

	// Starter is the raw artifact text of the bundle
	Starter string `yaml:"-" json:"-"`
}

// ContextPrompt wraps the starter artifact in the instructions shown to the model.
func (t Template) ContextPrompt() string {
	return fmt.Sprintf(contextPromptFormat, t.Starter)
}

// Prompts returns the user turns that precede the real prompt in chat history.
func (t Template) Prompts() []string {
	if t.IncludesBasePrompt {
		return []string{BasePrompt, t.ContextPrompt()}
	}
	return []string{t.ContextPrompt()}
}

type catalogDoc struct {
	Templates []Template `yaml:"templates"`
}

type Catalog struct {
	templates []Template
}

// Load parses the catalog compiled into the binary.
func Load() (*Catalog, error) {
	bundles, err := fs.Sub(bundleFS, "bundles")
	if err != nil {
		return nil, fmt.Errorf("failed to open bundles: %w", err)
	}
	return Parse(catalogYAML, bundles)
}

// MustLoad panics if the embedded catalog is invalid.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse reads a catalog document, resolving each template's bundle from bundles.
func Parse(doc []byte, bundles fs.FS) (*Catalog, error) {
	var parsed catalogDoc
	if err := yaml.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if len(parsed.Templates) == 0 {
		return nil, fmt.Errorf("catalog has no templates")
	}

	seen := map[string]bool{}
	for i, t := range parsed.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template %d has no id", i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		seen[t.ID] = true

		if t.Install.Name == "" || t.Dev.Name == "" {
			return nil, fmt.Errorf("template %q needs install and dev commands", t.ID)
		}

		if t.Bundle != "" {
			b, err := fs.ReadFile(bundles, path.Clean(t.Bundle))
			if err != nil {
				return nil, fmt.Errorf("failed to read bundle for %q: %w", t.ID, err)
			}
			parsed.Templates[i].Starter = strings.TrimSpace(string(b))
		}
	}

	return &Catalog{templates: parsed.Templates}, nil
}

// IDs returns template ids in classification priority order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.templates))
	for _, t := range c.templates {
		ids = append(ids, t.ID)
	}
	return ids
}

func (c *Catalog) Get(id string) (Template, bool) {
	for _, t := range c.templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Templates returns a copy of every template in priority order.
func (c *Catalog) Templates() []Template {
	return append([]Template{}, c.templates...)
}
