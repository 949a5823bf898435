package starter

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"react", "node", "next"}, c.IDs())

	react, ok := c.Get("react")
	require.True(t, ok)
	assert.True(t, react.IncludesBasePrompt)
	assert.Equal(t, Command{Name: "npx", Args: []string{"vite", "--host"}}, react.Dev)
	assert.Equal(t, Command{Name: "npm", Args: []string{"install"}}, react.Install)
	assert.Contains(t, react.Starter, `<boltArtifact id="project-import"`)
	assert.Contains(t, react.Starter, `filePath="src/App.tsx"`)

	next, ok := c.Get("next")
	require.True(t, ok)
	assert.Equal(t, Command{Name: "npx", Args: []string{"next", "dev"}}, next.Dev)

	node, ok := c.Get("node")
	require.True(t, ok)
	assert.Equal(t, Command{Name: "npm", Args: []string{"run", "dev"}}, node.Dev)

	_, ok = c.Get("vue")
	assert.False(t, ok)
}

func TestPrompts(t *testing.T) {
	c := MustLoad()

	react, _ := c.Get("react")
	prompts := react.Prompts()
	require.Len(t, prompts, 2)
	assert.Equal(t, BasePrompt, prompts[0])
	assert.True(t, strings.HasPrefix(prompts[1], "Here is an artifact that contains all files of the project visible to you.\nConsider the contents of ALL files in the project.\n\n<boltArtifact"))
	assert.True(t, strings.HasSuffix(prompts[1], "\n\nHere is a list of files that exist on the file system but are not being shown to you:\n\n  - .gitignore\n  - package-lock.json\n"))

	node, _ := c.Get("node")
	prompts = node.Prompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, node.ContextPrompt(), prompts[0])
}

func TestParse(t *testing.T) {
	bundles := fstest.MapFS{
		"vue.xml": {Data: []byte(`<boltArtifact id="v" title="Vue"></boltArtifact>`)},
	}

	tests := []struct {
		name    string
		doc     string
		wantErr string
		wantIDs []string
	}{
		{
			name: "custom order",
			doc: `templates:
  - id: vue
    bundle: vue.xml
    install: {name: pnpm, args: [install]}
    dev: {name: pnpm, args: [dev]}
  - id: static
    install: {name: "true"}
    dev: {name: npx, args: [serve]}
`,
			wantIDs: []string{"vue", "static"},
		},
		{
			name:    "empty",
			doc:     "templates: []",
			wantErr: "no templates",
		},
		{
			name: "duplicate",
			doc: `templates:
  - {id: a, install: {name: x}, dev: {name: y}}
  - {id: a, install: {name: x}, dev: {name: y}}
`,
			wantErr: "duplicate",
		},
		{
			name:    "missing dev",
			doc:     "templates:\n  - {id: a, install: {name: x}}\n",
			wantErr: "needs install and dev",
		},
		{
			name:    "missing bundle",
			doc:     "templates:\n  - {id: a, bundle: gone.xml, install: {name: x}, dev: {name: y}}\n",
			wantErr: "failed to read bundle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.doc), bundles)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, c.IDs())
		})
	}
}
