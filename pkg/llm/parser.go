package llm

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	types "github.com/cognitodev/launchpad/pkg/llm/types"
)

var (
	wrappingFence   = regexp.MustCompile("(?s)\\A```[A-Za-z0-9_+-]*[ \t]*\r?\n(.*?)\r?\n?```\\z")
	artifactRegex   = regexp.MustCompile(`(?s)<(boltArtifact|artifact)\s+id="([^"]+)"\s+title="([^"]+)"\s*>(.*?)</(?:boltArtifact|artifact)>`)
	actionRegex     = regexp.MustCompile(`(?s)<(boltAction|action)\s+type="([^"]+)"(?:\s+filePath="([^"]+)")?\s*>(.*?)</(?:boltAction|action)>`)
	artifactOpenTag = regexp.MustCompile(`<(?:boltArtifact|artifact)[\s>]`)
)

// CleanResponse removes a code fence wrapping the whole reply and unwraps a JSON envelope
// around it. Fences inside the reply are file content and are kept.
func CleanResponse(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if match := wrappingFence.FindStringSubmatch(cleaned); match != nil {
		cleaned = match[1]
	}

	if unwrapped, ok := firstJSONProperty(cleaned); ok {
		return unwrapped
	}

	return strings.TrimSpace(cleaned)
}

// firstJSONProperty returns the string value of the first property of a JSON object,
// in document order.
func firstJSONProperty(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", false
	}

	if !dec.More() {
		return "", false
	}
	if _, err := dec.Token(); err != nil {
		return "", false
	}

	var value string
	if err := dec.Decode(&value); err != nil {
		return "", false
	}

	// the remainder must still be a valid object, otherwise the text was never JSON
	var whole map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &whole); err != nil {
		return "", false
	}

	return value, true
}

// DecodeArtifact finds the artifact container in a model reply. A reply without one is a
// valid outcome (the model asked a question instead of producing files), reported as false.
func DecodeArtifact(raw string) (*types.Artifact, bool) {
	cleaned := CleanResponse(raw)

	match := artifactRegex.FindStringSubmatch(cleaned)
	if match == nil {
		return nil, false
	}

	return &types.Artifact{
		ID:      match[2],
		Title:   match[3],
		Actions: ListActions(match[4]),
	}, true
}

// ListActions scans every action tag in order, regardless of its type.
func ListActions(body string) []types.Action {
	actions := []types.Action{}

	for _, match := range actionRegex.FindAllStringSubmatch(body, -1) {
		actionType := match[2]
		actions = append(actions, types.Action{
			Kind:    types.KindForType(actionType),
			Type:    actionType,
			Path:    match[3],
			Content: strings.TrimSpace(match[4]),
		})
	}

	return actions
}

// ParseFiles decodes a reply straight into path -> content for write-file actions.
func ParseFiles(raw string) map[string]string {
	artifact, ok := DecodeArtifact(raw)
	if !ok {
		return map[string]string{}
	}
	return artifact.FileMap()
}

// HasArtifactTag reports whether the reply looks like it was trying to produce an artifact,
// even if it could not be decoded.
func HasArtifactTag(raw string) bool {
	return artifactOpenTag.MatchString(raw)
}
