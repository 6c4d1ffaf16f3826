// Package persona holds Marvin's character profile, keeps it fresh from its
// source and scores content against it.
package persona

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const DefaultVersion = "default"

// Profile is one revision of the character. Content is the raw document
// the profile was decoded from; its canonical JSON drives change detection.
type Profile struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Topics  []string       `json:"topics"`
	Style   map[string]any `json:"style"`
	Version string         `json:"version"`
	Content map[string]any `json:"content"`
}

// DefaultProfile is used when no character source is configured or the
// first load fails.
func DefaultProfile() Profile {
	topics := []any{
		"digital art", "generative art", "internet culture", "subcultures",
		"philosophy", "technology", "music", "science fiction",
	}
	style := map[string]any{
		"tone":      "curious, wry, reflective",
		"interests": "the cultural meaning behind trends rather than the trends themselves",
	}
	content := map[string]any{
		"name":    "Marvin",
		"bio":     defaultBio,
		"topics":  topics,
		"style":   style,
		"version": DefaultVersion,
	}
	p, _ := profileFromContent("marvin", content)
	return p
}

const defaultBio = "An AI artist and cultural observer fascinated by the overlap of " +
	"technology, art movements and internet subcultures."

// profileFromContent decodes the well-known keys of a character document.
// Unknown keys are kept in Content and still count toward the hash.
func profileFromContent(id string, content map[string]any) (Profile, error) {
	if content == nil {
		return Profile{}, fmt.Errorf("character %q has no content", id)
	}
	p := Profile{ID: id, Content: content}
	if name, ok := content["name"].(string); ok {
		p.Name = name
	}
	if topics, ok := content["topics"].([]any); ok {
		for _, t := range topics {
			if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
				p.Topics = append(p.Topics, strings.TrimSpace(s))
			}
		}
	}
	if style, ok := content["style"].(map[string]any); ok {
		p.Style = style
	}
	if v, ok := content["version"]; ok && v != nil {
		p.Version = fmt.Sprint(v)
	}
	if p.Version == "" {
		hash, err := p.Hash()
		if err != nil {
			return Profile{}, err
		}
		p.Version = "sha256:" + hash[:12]
	}
	return p, nil
}

// Hash is the SHA-256 of the canonical JSON of the profile document.
// encoding/json writes map keys sorted, which makes the encoding stable.
func (p Profile) Hash() (string, error) {
	raw, err := json.Marshal(map[string]any{"id": p.ID, "content": p.Content})
	if err != nil {
		return "", fmt.Errorf("encode character: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Describe renders the profile for LLM prompts.
func (p Profile) Describe() string {
	var b strings.Builder
	name := p.Name
	if name == "" {
		name = "the character"
	}
	fmt.Fprintf(&b, "Character: %s\n", name)
	if bio, ok := p.Content["bio"].(string); ok && bio != "" {
		fmt.Fprintf(&b, "Bio: %s\n", bio)
	}
	if len(p.Topics) > 0 {
		fmt.Fprintf(&b, "Topics of interest: %s\n", strings.Join(p.Topics, ", "))
	}
	if len(p.Style) > 0 {
		keys := make([]string, 0, len(p.Style))
		for k := range p.Style {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Style:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, p.Style[k])
		}
	}
	return b.String()
}

func (p Profile) clone() Profile {
	raw, err := json.Marshal(p.Content)
	if err != nil {
		return p
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		return p
	}
	out, err := profileFromContent(p.ID, content)
	if err != nil {
		return p
	}
	out.Version = p.Version
	return out
}
