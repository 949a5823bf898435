package llm

import (
	"testing"

	types "github.com/cognitodev/launchpad/pkg/llm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain text is trimmed",
			raw:  "  hello world \n",
			want: "hello world",
		},
		{
			name: "fence with language tag",
			raw:  "```xml\n<boltArtifact id=\"a\" title=\"t\"></boltArtifact>\n```",
			want: `<boltArtifact id="a" title="t"></boltArtifact>`,
		},
		{
			name: "fence without language tag",
			raw:  "```\nreact\n```",
			want: "react",
		},
		{
			name: "json envelope uses first property",
			raw:  `{"response": "<artifact id=\"x\" title=\"y\"></artifact>", "other": "ignored"}`,
			want: `<artifact id="x" title="y"></artifact>`,
		},
		{
			name: "fenced json envelope",
			raw:  "```json\n{\"text\": \"node\"}\n```",
			want: "node",
		},
		{
			name: "fence that does not wrap the reply is kept",
			raw:  "Run it with:\n```bash\nnpm run dev\n```",
			want: "Run it with:\n```bash\nnpm run dev\n```",
		},
		{
			name: "broken json is kept literally",
			raw:  `{"response": "unterminated`,
			want: `{"response": "unterminated`,
		},
		{
			name: "json with non-string first value is kept literally",
			raw:  `{"count": 3}`,
			want: `{"count": 3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanResponse(tt.raw))
		})
	}
}

func TestParseFilesKeepsFencesInFileContent(t *testing.T) {
	readme := "# Todo\n\n```bash\nnpm install\nnpm run dev\n```\n"
	raw := "```xml\n<boltArtifact id=\"todo\" title=\"Todo\">\n" +
		"<boltAction type=\"file\" filePath=\"README.md\">" + readme + "</boltAction>\n" +
		"<boltAction type=\"file\" filePath=\"src/main.ts\">const fence = '```'</boltAction>\n" +
		"</boltArtifact>\n```"

	files := ParseFiles(raw)
	assert.Equal(t, readme, files["README.md"])
	assert.Equal(t, "const fence = '```'", files["src/main.ts"])
}

func TestDecodeArtifactAbsent(t *testing.T) {
	for _, raw := range []string{"", "no tags here", "<boltAction type=\"file\" filePath=\"a\">x</boltAction>"} {
		artifact, ok := DecodeArtifact(raw)
		assert.False(t, ok, raw)
		assert.Nil(t, artifact, raw)
		assert.Empty(t, ParseFiles(raw), raw)
	}
}

func TestDecodeArtifactSingleFile(t *testing.T) {
	raw := `<artifact id="a" title="t"><action type="file" filePath="src/x.ts">  hello  </action></artifact>`

	artifact, ok := DecodeArtifact(raw)
	require.True(t, ok)
	assert.Equal(t, "a", artifact.ID)
	assert.Equal(t, "t", artifact.Title)
	require.Len(t, artifact.Actions, 1)
	assert.Equal(t, types.ActionKindWriteFile, artifact.Actions[0].Kind)
	assert.Equal(t, "src/x.ts", artifact.Actions[0].Path)
	assert.Equal(t, "hello", artifact.Actions[0].Content)
}

func TestDecodeArtifactPreservesInnerWhitespace(t *testing.T) {
	raw := "<boltArtifact id=\"app\" title=\"App\">\n<boltAction type=\"file\" filePath=\"main.go\">\n\npackage main\n\n\tfunc main() {}\n\n</boltAction>\n</boltArtifact>"

	files := ParseFiles(raw)
	assert.Equal(t, map[string]string{"main.go": "package main\n\n\tfunc main() {}"}, files)
}

func TestDecodeArtifactIsIdempotent(t *testing.T) {
	raw := `<boltArtifact id="todo" title="Todo">
<boltAction type="file" filePath="package.json">{"name": "todo"}</boltAction>
<boltAction type="shell">npm install</boltAction>
<boltAction type="file" filePath="src/App.jsx">export default function App() {}</boltAction>
</boltArtifact>`

	first, ok := DecodeArtifact(raw)
	require.True(t, ok)
	second, ok := DecodeArtifact(raw)
	require.True(t, ok)
	assert.Equal(t, first.Actions, second.Actions)
}

func TestListActionsKeepsEveryType(t *testing.T) {
	body := `<boltAction type="file" filePath="a.txt">A</boltAction>
<boltAction type="shell">npm run build</boltAction>
<boltAction type="delete" filePath="old.txt"></boltAction>`

	actions := ListActions(body)
	require.Len(t, actions, 3)

	assert.Equal(t, types.ActionKindWriteFile, actions[0].Kind)
	assert.Equal(t, types.ActionKindRunShell, actions[1].Kind)
	assert.Equal(t, "npm run build", actions[1].Content)
	assert.Empty(t, actions[1].Path)
	assert.Equal(t, types.ActionKindUnknown, actions[2].Kind)
	assert.Equal(t, "delete", actions[2].Type)

	artifact := &types.Artifact{Actions: actions}
	assert.Equal(t, map[string]string{"a.txt": "A"}, artifact.FileMap())
}

func TestDuplicatePathLastWins(t *testing.T) {
	raw := `<boltArtifact id="a" title="t">
<boltAction type="file" filePath="index.js">first</boltAction>
<boltAction type="file" filePath="index.js">second</boltAction>
</boltArtifact>`

	artifact, ok := DecodeArtifact(raw)
	require.True(t, ok)
	require.Len(t, artifact.Actions, 2)
	assert.Equal(t, "first", artifact.Actions[0].Content)
	assert.Equal(t, map[string]string{"index.js": "second"}, artifact.FileMap())
}

func TestDecodeArtifactZeroActions(t *testing.T) {
	artifact, ok := DecodeArtifact(`<boltArtifact id="empty" title="Nothing"></boltArtifact>`)
	require.True(t, ok)
	assert.Empty(t, artifact.Actions)
	assert.Empty(t, artifact.FileMap())
}

func TestDecodeArtifactMalformedTail(t *testing.T) {
	raw := `<boltArtifact id="a" title="t">
<boltAction type="file" filePath="ok.txt">fine</boltAction>
<boltAction type="file" filePath="broken.txt">never closed
</boltArtifact>`

	artifact, ok := DecodeArtifact(raw)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"ok.txt": "fine"}, artifact.FileMap())
}

func TestFileActionWithoutPathIsDropped(t *testing.T) {
	files := ParseFiles(`<boltArtifact id="a" title="t"><boltAction type="file">orphan</boltAction></boltArtifact>`)
	assert.Empty(t, files)
}

func TestHasArtifactTag(t *testing.T) {
	assert.True(t, HasArtifactTag(`<boltArtifact id="a"`))
	assert.True(t, HasArtifactTag(`<artifact>`))
	assert.False(t, HasArtifactTag(`<artifacts>`))
	assert.False(t, HasArtifactTag("just a question?"))
}
