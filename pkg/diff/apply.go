package diff

import (
	"fmt"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// Apply applies a single-file unified diff to content. Context and removed lines must match
// exactly; hunks must be in file order.
func Apply(content string, patchText string) (string, error) {
	content = normalizeLineEndings(content)
	patchText = normalizeLineEndings(patchText)

	if strings.TrimSpace(patchText) == "" {
		return content, nil
	}

	fileDiff, err := godiff.ParseFileDiff([]byte(patchText))
	if err != nil {
		return "", fmt.Errorf("failed to parse patch: %w", err)
	}

	if len(fileDiff.Hunks) == 0 {
		return content, nil
	}

	var lines []string
	trailingNewline := true
	if content != "" {
		trailingNewline = strings.HasSuffix(content, "\n")
		lines = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	}

	result := make([]string, 0, len(lines))
	pos := 0

	for i, hunk := range fileDiff.Hunks {
		start := int(hunk.OrigStartLine) - 1
		if hunk.OrigLines == 0 {
			// pure insertion: the start line is the one after which lines are added
			start = int(hunk.OrigStartLine)
		}
		if start < pos || start > len(lines) {
			return "", fmt.Errorf("hunk %d starts at line %d, outside of content", i+1, hunk.OrigStartLine)
		}

		result = append(result, lines[pos:start]...)
		pos = start

		for _, line := range strings.Split(strings.TrimSuffix(string(hunk.Body), "\n"), "\n") {
			if line == "" {
				continue
			}

			switch line[0] {
			case ' ', '-':
				if pos >= len(lines) || lines[pos] != line[1:] {
					return "", fmt.Errorf("hunk %d does not match content at line %d", i+1, pos+1)
				}
				if line[0] == ' ' {
					result = append(result, lines[pos])
				}
				pos++
			case '+':
				result = append(result, line[1:])
			}
		}
	}

	// the parser drops "\ No newline at end of file" markers: a missing final newline in the
	// body means the new file has none, OrigNoNewlineAt means the old one had none
	last := fileDiff.Hunks[len(fileDiff.Hunks)-1]
	if !strings.HasSuffix(string(last.Body), "\n") {
		trailingNewline = false
	} else if last.OrigNoNewlineAt > 0 {
		trailingNewline = true
	}

	result = append(result, lines[pos:]...)

	if len(result) == 0 {
		return "", nil
	}

	out := strings.Join(result, "\n")
	if trailingNewline {
		out += "\n"
	}
	return out, nil
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
