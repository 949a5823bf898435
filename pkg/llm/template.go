package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	types "github.com/cognitodev/launchpad/pkg/llm/types"
)

var ErrNoTemplateMatch = errors.New("reply did not name a known template")

// ClassificationPrompt asks the model for exactly one of ids.
func ClassificationPrompt(prompt string, ids []string) string {
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, fmt.Sprintf("'%s'", id))
	}

	return fmt.Sprintf("Return either %s based on what do you think this project should be. Only return a single word either %s . Do not return anything extra: %s",
		joinOr(ids), joinOr(quoted), prompt)
}

func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}

// MatchTemplate returns the first id, in the given order, contained in the reply.
// Matching ignores case and surrounding text.
func MatchTemplate(reply string, ids []string) (string, bool) {
	answer := strings.ToLower(strings.TrimSpace(reply))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if strings.Contains(answer, strings.ToLower(id)) {
			return id, true
		}
	}
	return "", false
}

// ClassifyTemplate runs the short classification call and matches the reply against ids.
func ClassifyTemplate(ctx context.Context, gateway Gateway, prompt string, ids []string) (string, string, error) {
	history := []types.Message{
		{Role: types.RoleUser, Text: ClassificationPrompt(prompt, ids)},
	}

	reply, err := gateway.Generate(ctx, history, types.ClassifyOptions)
	if err != nil {
		return "", "", fmt.Errorf("classify template: %w", err)
	}

	id, ok := MatchTemplate(reply, ids)
	if !ok {
		return "", reply, ErrNoTemplateMatch
	}

	return id, reply, nil
}
