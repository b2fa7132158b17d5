package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/steward-dev/steward/internal/errors"
)

// ExtractTagged returns the content wrapped in <tag></tag> within raw model
// output. Backends are instructed to wrap structured responses in named tags
// so prose around the payload can be discarded.
func ExtractTagged(raw, tag string) (string, error) {
	re := regexp.MustCompile(fmt.Sprintf(`(?s)<%s>\s*(.*?)\s*</%s>`, tag, tag))
	matches := re.FindStringSubmatch(raw)
	if len(matches) < 2 {
		return "", fmt.Errorf("%w: no <%s> block in output", errors.ErrResponseMalformed, tag)
	}
	return strings.TrimSpace(matches[1]), nil
}

// DecodeTagged extracts the <tag> block from raw output and unmarshals it as
// JSON into v. Markdown code fences inside the block are tolerated.
func DecodeTagged(raw, tag string, v any) error {
	payload, err := ExtractTagged(raw, tag)
	if err != nil {
		return err
	}

	payload = stripFences(payload)

	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("%w: invalid JSON in <%s> block: %v", errors.ErrResponseMalformed, tag, err)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
