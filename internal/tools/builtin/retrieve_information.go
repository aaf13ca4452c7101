package builtin

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
	"finbench/internal/httpclient"
	"finbench/internal/logging"
)

var placeholderRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// RetrieveTool substitutes stored documents into a prompt and forwards it to
// the language-synthesis oracle. The prompt must reference at least one
// stored key in {{key}} form; optional character ranges select document
// slices to stay under token limits.
type RetrieveTool struct {
	store       *DocStore
	synthesizer ports.Synthesizer
	limiter     *httpclient.MinDelayLimiter
	logger      logging.Logger
}

// NewRetrieveTool builds the retrieve_information tool bound to one loop's
// store. The limiter is shared across loops to space oracle calls.
func NewRetrieveTool(store *DocStore, synthesizer ports.Synthesizer, limiter *httpclient.MinDelayLimiter, logger logging.Logger) *RetrieveTool {
	return &RetrieveTool{
		store:       store,
		synthesizer: synthesizer,
		limiter:     limiter,
		logger:      logging.OrNop(logger),
	}
}

func (t *RetrieveTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:       "retrieve_information",
		Version:    "1.0",
		Category:   "retrieval",
		Tags:       []string{"document", "synthesis"},
		Idempotent: true,
	}
}

func (t *RetrieveTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "retrieve_information",
		Description: "Retrieve information from stored documents. The prompt MUST include at " +
			"least one stored key in the exact format {{key_name}}; the stored content replaces " +
			"the placeholder before the prompt is sent. Character ranges may select portions of " +
			"documents to avoid token limits.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"prompt": {
					Type: "string",
					Description: "The prompt to send, with stored keys referenced as {{key_name}}, " +
						"for example: 'Summarize this 10-K filing: {{company_10k}}'",
				},
				"input_character_ranges": {
					Type: "array",
					Description: "Per-key character ranges as objects with 'key' and 'range' " +
						"([start, end], or [] for the full document)",
					Items: &ports.Property{Type: "object"},
				},
			},
			Required: []string{"prompt"},
		},
	}
}

// Execute substitutes placeholders and queries the oracle once.
func (t *RetrieveTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	prompt, _ := call.Arguments["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt must be a non-empty string", finerrors.ErrInvalidArguments)
	}

	matches := placeholderRe.FindAllStringSubmatch(prompt, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: prompt must include at least one stored key in the format {{key_name}}",
			finerrors.ErrInvalidArguments)
	}

	ranges, err := parseCharacterRanges(call.Arguments["input_character_ranges"])
	if err != nil {
		return nil, err
	}

	substituted := prompt
	for _, m := range matches {
		key := m[1]
		content, ok := t.store.Get(key)
		if !ok {
			return nil, fmt.Errorf("%w: key %q not found in data storage; available keys: %s",
				finerrors.ErrInvalidArguments, key, strings.Join(t.store.Keys(), ", "))
		}
		if r, ok := ranges[key]; ok {
			content, err = sliceRange(key, content, r)
			if err != nil {
				return nil, err
			}
		}
		substituted = strings.ReplaceAll(substituted, m[0], content)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	t.logger.Debug("retrieve_information querying oracle with %d substituted keys", len(matches))
	resp, err := t.synthesizer.Complete(ctx, ports.SynthesisRequest{Prompt: substituted})
	if err != nil {
		return nil, err
	}

	return &ports.ToolResult{
		CallID:  call.ID,
		Content: resp.Content,
		Metadata: map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
		},
	}, nil
}

// parseCharacterRanges normalizes the input_character_ranges argument into a
// key-to-range map. Ranges arrive as JSON-decoded values.
func parseCharacterRanges(raw any) (map[string][]int, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: input_character_ranges must be an array", finerrors.ErrInvalidArguments)
	}

	ranges := make(map[string][]int, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: each character range must be an object with 'key' and 'range'",
				finerrors.ErrInvalidArguments)
		}
		key, _ := obj["key"].(string)
		if key == "" {
			return nil, fmt.Errorf("%w: character range is missing its key", finerrors.ErrInvalidArguments)
		}
		rawRange, ok := obj["range"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: character range for key %q must be an array", finerrors.ErrInvalidArguments, key)
		}
		r := make([]int, 0, len(rawRange))
		for _, v := range rawRange {
			n, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: character range for key %q must contain integers",
					finerrors.ErrInvalidArguments, key)
			}
			r = append(r, int(n))
		}
		ranges[key] = r
	}
	return ranges, nil
}

// sliceRange applies a [start, end] character range. An empty range means
// the full document.
func sliceRange(key, content string, r []int) (string, error) {
	switch len(r) {
	case 0:
		return content, nil
	case 2:
		start, end := r[0], r[1]
		if start < 0 {
			start = 0
		}
		if end > len(content) {
			end = len(content)
		}
		if start >= end {
			return "", nil
		}
		return content[start:end], nil
	default:
		return "", fmt.Errorf("%w: character range for key %q must have two elements or be empty",
			finerrors.ErrInvalidArguments, key)
	}
}
