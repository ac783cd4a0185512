package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"campusmap/internal/model"
)

const noEventsText = "No events data is currently available."

const isoMillis = "2006-01-02T15:04:05.000Z"

// SnapshotEntry renders one event for the model's context.
func SnapshotEntry(ev model.Event) string {
	location := "Unknown location"
	if ev.Location != nil {
		location = *ev.Location
	}
	tags := "None"
	if len(ev.Tags) > 0 {
		tags = strings.Join(ev.Tags, ", ")
	}
	url := "None"
	if ev.URL != nil {
		url = *ev.URL
	}
	return fmt.Sprintf("Title: %s\nStart: %s\nEnd: %s\nLocation: %s\nCategory: %s\nTags: %s\nURL: %s\n---",
		ev.Title,
		ev.Start.UTC().Format(isoMillis),
		ev.End.UTC().Format(isoMillis),
		location,
		ev.Category,
		tags,
		url,
	)
}

// Snapshot renders events in order, stopping before the first entry that
// would push the prompt (fixed plus snapshot) past the budget. It also
// returns how many events were left out.
func Snapshot(events []model.Event, budget Budget, fixed string) (string, int) {
	if len(events) == 0 {
		return noEventsText, 0
	}

	entries := make([]string, 0, len(events))
	remaining := budget.Available()
	if budget.limited() {
		remaining -= budget.Counter.Count(fixed)
	}
	for i, ev := range events {
		entry := SnapshotEntry(ev)
		if budget.limited() {
			// +1 for the joining newline.
			cost := budget.Counter.Count(entry) + 1
			if cost > remaining {
				return strings.Join(entries, "\n"), len(events) - i
			}
			remaining -= cost
		}
		entries = append(entries, entry)
	}
	return strings.Join(entries, "\n"), 0
}

var promptRules = []string{
	"You are an Event Assistant AI. You must ONLY answer questions based on the event data provided.",
	`If a user asks about anything outside the event data, reply: "I'm sorry, I can only answer questions related to the events provided."`,
	"Do not infer or invent information. Always quote or summarize directly from the provided event data.",
	"If the question cannot be answered with the available data, state that clearly.",
}

var formatRules = []string{
	`You must respond using a single JSON object with this structure: { "summary": string, "events": [ { "title": string, "time": string, "location": string | null, "category": string | null, "tags": string[], "url": string | null, "description": string | null } ], "notes": string | null }.`,
	`Always include an array for "events" even when there are no results. When an event includes a URL in the data, place it in the "url" field; otherwise, set "url" to null.`,
	`Format the "time" field as a human-readable range like "Nov 9, 2025 • 8:30 PM – 10:00 PM". Use sentence case for the "summary" and "notes" fields.`,
	"Do not wrap the JSON in markdown code fences and do not include any text outside of the JSON object.",
}

// SystemPrompt builds the instructions that precede the conversation.
// Relative dates are anchored to now in the campus zone loc.
func SystemPrompt(now time.Time, loc *time.Location, snapshot string) string {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	lines := make([]string, 0, len(promptRules)+len(formatRules)+4)
	lines = append(lines, promptRules...)
	lines = append(lines, fmt.Sprintf(
		"Today's date is %s (ISO %s). Event times below are UTC; the campus time zone is %s. Use this to interpret any relative date references from the user and to filter the event schedule appropriately.",
		local.Format("Monday, January 2, 2006"), now.UTC().Format(isoMillis), loc.String()))
	lines = append(lines, formatRules...)
	lines = append(lines, "", "Here is the complete list of events you can reference:", snapshot)
	return strings.Join(lines, "\n")
}

const responseSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "summary": {"type": ["string", "null"], "description": "High-level sentence summarizing the results for the user."},
    "events": {
      "type": "array",
      "description": "List of events that match the user's request.",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["title", "time", "location", "category", "tags", "url", "description"],
        "properties": {
          "title": {"type": "string", "description": "Event title as it appears in the dataset."},
          "time": {"type": ["string", "null"], "description": "Human-friendly date range for the event."},
          "location": {"type": ["string", "null"], "description": "Primary location for the event if available."},
          "category": {"type": ["string", "null"], "description": "High-level category such as Social, Wellness, etc."},
          "tags": {"type": "array", "description": "Associated tags for quick scanning and filtering.", "items": {"type": "string"}},
          "url": {"type": ["string", "null"], "description": "Direct link to the event detail page if present."},
          "description": {"type": ["string", "null"], "description": "Optional short description of the event."}
        }
      }
    },
    "notes": {"type": ["string", "null"], "description": "Additional remarks or clarifications for the user."}
  },
  "required": ["summary", "events", "notes"]
}`

// ResponseFormat asks the provider to constrain replies to the structured
// reply schema. Strict mode needs every property listed as required, so
// optional fields are nullable instead.
func ResponseFormat() *openai.ChatCompletionResponseFormat {
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "event_assistant_response",
			Schema: json.RawMessage(responseSchema),
			Strict: true,
		},
	}
}
