package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"contentdesk/internal/app/model"
)

var platformAliases = map[model.Platform][]string{
	model.PlatformBlog:    {"blog", "naver_blog", "blog_post"},
	model.PlatformSNS:     {"sns", "instagram", "insta"},
	model.PlatformX:       {"x", "twitter", "tweet"},
	model.PlatformThreads: {"threads", "thread"},
}

var wrapperKeys = []string{"platforms", "content", "contents", "data", "result", "results"}

// rawPlatform accepts every shape the text backends are known to produce:
// title as a string or an object, tags or hashtags as an array or a single
// string, and content under several keys.
type rawPlatform struct {
	Title    json.RawMessage `json:"title"`
	Content  json.RawMessage `json:"content"`
	Body     json.RawMessage `json:"body"`
	Text     json.RawMessage `json:"text"`
	Tags     json.RawMessage `json:"tags"`
	Hashtags json.RawMessage `json:"hashtags"`
}

// DecodeAgentic normalises a raw agentic response into a TextBundle holding
// only the requested platforms. Platforms missing from the response are
// simply absent from the bundle.
func DecodeAgentic(data []byte, requested []model.Platform) (*model.TextBundle, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse agentic response: %w", err)
	}

	bundle := &model.TextBundle{
		Platforms: make(map[model.Platform]model.PlatformText),
		Analysis:  decodeObject(top["analysis"]),
		Critique:  decodeObject(top["critique"]),
	}

	source := platformSource(top)
	for _, p := range requested {
		raw, ok := lookupPlatform(source, p)
		if !ok {
			continue
		}
		text, ok := decodePlatform(raw)
		if !ok {
			continue
		}
		if p != model.PlatformBlog {
			text.Title = ""
		}
		bundle.Platforms[p] = text
	}

	return bundle, nil
}

func platformSource(top map[string]json.RawMessage) map[string]json.RawMessage {
	if hasPlatformKey(top) {
		return top
	}
	for _, key := range wrapperKeys {
		raw, ok := top[key]
		if !ok {
			continue
		}
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err == nil && hasPlatformKey(inner) {
			return inner
		}
	}
	return top
}

func hasPlatformKey(m map[string]json.RawMessage) bool {
	for _, aliases := range platformAliases {
		for _, a := range aliases {
			if _, ok := m[a]; ok {
				return true
			}
		}
	}
	return false
}

func lookupPlatform(source map[string]json.RawMessage, p model.Platform) (json.RawMessage, bool) {
	for _, alias := range platformAliases[p] {
		if raw, ok := source[alias]; ok && !isNull(raw) {
			return raw, true
		}
	}
	return nil, false
}

func decodePlatform(raw json.RawMessage) (model.PlatformText, bool) {
	// a bare string is treated as the content itself
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		plain = strings.TrimSpace(plain)
		return model.PlatformText{Content: plain, Tags: []string{}}, plain != ""
	}

	var rp rawPlatform
	if err := json.Unmarshal(raw, &rp); err != nil {
		return model.PlatformText{}, false
	}

	content := decodeText(rp.Content)
	if content == "" {
		content = decodeText(rp.Body)
	}
	if content == "" {
		content = decodeText(rp.Text)
	}
	if content == "" {
		return model.PlatformText{}, false
	}

	tags := decodeTags(rp.Tags)
	if len(tags) == 0 {
		tags = decodeTags(rp.Hashtags)
	}

	return model.PlatformText{
		Title:   decodeText(rp.Title),
		Content: content,
		Tags:    tags,
	}, true
}

// decodeText reads a string, an object carrying the text under a common key,
// or an array of lines.
func decodeText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"text", "main", "title", "value", "content"} {
			if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}

	return ""
}

func decodeTags(raw json.RawMessage) []string {
	if isNull(raw) {
		return []string{}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanTags(list)
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		fields := strings.FieldsFunc(joined, func(r rune) bool {
			return r == ' ' || r == ',' || r == '\n' || r == '\t'
		})
		return cleanTags(fields)
	}

	return []string{}
}

func decodeObject(raw json.RawMessage) map[string]any {
	if isNull(raw) {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func cleanTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := make(map[string]bool)

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		tag = strings.Trim(tag, "#")
		tag = strings.TrimSpace(tag)

		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, tag)
	}

	return result
}
