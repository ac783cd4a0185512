package assistant

import (
	"encoding/json"
	"errors"
	"strings"

	"campusmap/internal/events"
	appLog "campusmap/internal/log"
	"campusmap/internal/model"
)

// ErrMismatchedCloser means the fragment is structurally corrupt rather
// than merely truncated.
var ErrMismatchedCloser = errors.New("mismatched closing delimiter")

type scanState int

const (
	stateNormal scanState = iota
	stateInString
	stateInStringEscaped
)

// AutoClose completes a JSON fragment that was cut off mid-structure. It
// scans outside string literals, keeping a stack of expected closers, and
// appends whatever is still open at the end of input. A fragment that ends
// inside a string gets its closing quote first. It returns
// ErrMismatchedCloser when a closer does not match the innermost opener.
func AutoClose(fragment string) (string, error) {
	s := strings.TrimSpace(fragment)
	state := stateNormal
	var stack []byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case stateInStringEscaped:
			state = stateInString
		case stateInString:
			switch c {
			case '\\':
				state = stateInStringEscaped
			case '"':
				state = stateNormal
			}
		case stateNormal:
			switch c {
			case '"':
				state = stateInString
			case '{':
				stack = append(stack, '}')
			case '[':
				stack = append(stack, ']')
			case '}', ']':
				if len(stack) == 0 || stack[len(stack)-1] != c {
					return "", ErrMismatchedCloser
				}
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.Grow(len(s) + len(stack) + 1)
	switch state {
	case stateInStringEscaped:
		// A dangling backslash would escape the synthesized quote.
		b.WriteString(s[:len(s)-1])
		b.WriteByte('"')
	case stateInString:
		b.WriteString(s)
		b.WriteByte('"')
	default:
		b.WriteString(s)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String(), nil
}

// StripFence removes a surrounding ```json ... ``` markdown fence.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// candidate returns the text from the first '{' through the last '}'. When
// the reply was cut off before any closing brace it runs to the end.
func candidate(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(content, '}')
	if end <= start {
		return content[start:], true
	}
	return content[start : end+1], true
}

// Parse extracts the structured reply from model output. A direct parse is
// tried first and the fragment is only repaired if that fails. It returns
// nil when no usable object can be recovered.
func Parse(content string) *model.AssistantResponse {
	text, ok := candidate(StripFence(content))
	if !ok {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return toResponse(obj)
	}

	repaired, err := AutoClose(text)
	if err != nil {
		appLog.Debug("assistant reply not repairable", "err", err)
		return nil
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		appLog.Debug("repaired assistant reply still invalid", "err", err)
		return nil
	}
	return toResponse(obj)
}

func toResponse(obj map[string]any) *model.AssistantResponse {
	if obj == nil {
		return nil
	}
	resp := &model.AssistantResponse{
		Summary: optionalString(obj["summary"]),
		Notes:   optionalString(obj["notes"]),
		Events:  []model.AssistantEvent{},
	}
	items, _ := obj["events"].([]any)
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := fields["title"].(string)
		if title = strings.TrimSpace(title); title == "" {
			continue
		}
		resp.Events = append(resp.Events, model.AssistantEvent{
			Title:       title,
			Time:        optionalString(fields["time"]),
			Location:    optionalString(fields["location"]),
			Category:    optionalString(fields["category"]),
			Description: optionalString(fields["description"]),
			Tags:        events.NormalizeTags(fields["tags"]),
			URL:         optionalString(fields["url"]),
		})
	}
	return resp
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
