package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"campusmap/internal/events"
	appLog "campusmap/internal/log"
)

// parseJSONLD extracts schema.org Event objects from the
// <script type="application/ld+json"> blocks of a calendar page.
func parseJSONLD(src Source, body []byte) ([]events.RawEvent, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var blocks []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && isJSONLD(n) {
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			blocks = append(blocks, b.String())
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	out := make([]events.RawEvent, 0)
	for i, block := range blocks {
		var v any
		if err := json.Unmarshal([]byte(block), &v); err != nil {
			appLog.Debug("skipping invalid json-ld block", "id", src.ID, "index", i, "err", err)
			continue
		}
		for _, obj := range collectEvents(v) {
			out = append(out, eventFromLD(obj))
		}
	}
	appLog.Info("json-ld parse completed", "id", src.ID, "url", redactURL(src.URL), "blocks", len(blocks), "event_count", len(out))
	return out, nil
}

func isJSONLD(n *html.Node) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, "type") && strings.EqualFold(strings.TrimSpace(a.Val), "application/ld+json") {
			return true
		}
	}
	return false
}

// collectEvents finds Event objects in a JSON-LD value, descending into
// arrays and @graph.
func collectEvents(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, collectEvents(item)...)
		}
		return out
	case map[string]any:
		if isEventType(t["@type"]) {
			return []map[string]any{t}
		}
		if g, ok := t["@graph"]; ok {
			return collectEvents(g)
		}
	}
	return nil
}

// isEventType accepts "Event" and its subtypes (e.g. "SportsEvent").
func isEventType(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.HasSuffix(t, "Event")
	case []any:
		for _, item := range t {
			if isEventType(item) {
				return true
			}
		}
	}
	return false
}

func eventFromLD(obj map[string]any) events.RawEvent {
	raw := events.RawEvent{
		Title: stringField(obj, "name"),
		Start: stringField(obj, "startDate"),
		End:   stringField(obj, "endDate"),
		URL:   stringField(obj, "url"),
	}

	raw.ID = stringField(obj, "@id")
	if raw.ID == nil {
		raw.ID = raw.URL
	}

	if d := stringField(obj, "description"); d != nil {
		raw.Description = htmlToText(*d)
	}

	switch loc := obj["location"].(type) {
	case string:
		raw.Location = &loc
	case map[string]any:
		raw.Location = placeName(loc)
		if geo, ok := loc["geo"].(map[string]any); ok {
			raw.Lat = numberField(geo, "latitude")
			raw.Lng = numberField(geo, "longitude")
		}
	case []any:
		if len(loc) > 0 {
			if place, ok := loc[0].(map[string]any); ok {
				raw.Location = placeName(place)
			}
		}
	}

	tags := keywords(obj["keywords"])
	anyTags := make([]any, len(tags))
	for i, t := range tags {
		anyTags[i] = t
	}
	raw.Tags = anyTags
	category := string(events.InferCategory(tags))
	raw.Category = &category
	return raw
}

func placeName(place map[string]any) *string {
	if name := stringField(place, "name"); name != nil {
		return name
	}
	switch addr := place["address"].(type) {
	case string:
		return &addr
	case map[string]any:
		return stringField(addr, "streetAddress")
	}
	return nil
}

func keywords(v any) []string {
	var parts []string
	switch t := v.(type) {
	case string:
		parts = strings.Split(t, ",")
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stringField(obj map[string]any, key string) *string {
	s, ok := obj[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// numberField accepts numbers and numeric strings; schema.org allows both.
func numberField(obj map[string]any, key string) *float64 {
	switch t := obj[key].(type) {
	case float64:
		return &t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return &f
		}
	}
	return nil
}

// htmlToText flattens an HTML description to markdown text. Plain text
// passes through unchanged.
func htmlToText(s string) *string {
	if !strings.ContainsAny(s, "<&") {
		return &s
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		appLog.Debug("description conversion failed; keeping raw text", "err", err)
		return &s
	}
	md = strings.TrimSpace(md)
	return &md
}
