package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a completion contains no JSON object.
var ErrNoJSON = errors.New("llm: no JSON object in response")

// CompleteJSON runs a JSON-mode completion and decodes the first JSON object
// in the reply into out.
func CompleteJSON(ctx context.Context, p Provider, req Request, out any) error {
	req.JSON = true
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp.Content, out)
}

// DecodeJSON tolerates markdown fences and prose around the object.
func DecodeJSON(content string, out any) error {
	raw := ExtractJSONObject(content)
	if raw == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("llm: decode JSON: %w", err)
	}
	return nil
}

// ExtractJSONObject returns the outermost {...} span, or "" if none.
func ExtractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
