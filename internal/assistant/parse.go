package assistant

import (
	"encoding/json"
	"errors"
	"strings"
)

// Translation is the structured result of the first model call. It lives for
// one user turn and is never persisted.
type Translation struct {
	SQL         string
	Explanation string
	Request     string
	Notes       string
}

// IsValid is derived, never stored: a translation is usable iff the model
// actually produced a query.
func (t Translation) IsValid() bool {
	return t.SQL != ""
}

// ParseTranslation extracts a Translation from the model's raw text. The
// model is asked for bare JSON but routinely wraps it in prose or code
// fences, so extraction is positional: strip a leading fence marker, strip a
// trailing one, then take everything from the first '{' to the last '}'.
// Field names match case-insensitively and "query" is accepted as a synonym
// for "sql".
func ParseTranslation(raw string) (Translation, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return Translation{}, newParseError(raw, errors.New("no JSON object in model output"))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Translation{}, newParseError(raw, err)
	}

	lowered := make(map[string]json.RawMessage, len(fields))
	for key, value := range fields {
		lowered[strings.ToLower(key)] = value
	}

	sql, ok := fieldString(lowered, "sql", "query")
	if !ok {
		return Translation{}, newParseError(raw, errors.New(`missing "sql" field`))
	}
	explanation, _ := fieldString(lowered, "explanation")
	request, _ := fieldString(lowered, "request")
	notes, _ := fieldString(lowered, "notes")

	return Translation{
		SQL:         strings.TrimSpace(sql),
		Explanation: explanation,
		Request:     request,
		Notes:       notes,
	}, nil
}

func fieldString(fields map[string]json.RawMessage, names ...string) (string, bool) {
	for _, name := range names {
		raw, present := fields[name]
		if !present {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		return value, true
	}
	return "", false
}

func extractJSONObject(raw string) string {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "```json") {
		trimmed = strings.TrimSpace(trimmed[len("```json"):])
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(trimmed[len("```"):])
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(trimmed[:len(trimmed)-len("```")])
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end < start {
		return ""
	}
	return trimmed[start : end+1]
}
