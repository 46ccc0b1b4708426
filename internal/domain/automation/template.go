package automation

import (
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// TemplateVars builds the lookup root for step parameters. Templates address
// payload.*, event.type, event.id, event.occurred_at and org_id.
func TemplateVars(ev *TriggerEvent) map[string]any {
	return map[string]any{
		"payload": ev.Payload,
		"event": map[string]any{
			"type":        ev.EventType,
			"id":          ev.EventID.String(),
			"occurred_at": ev.OccurredAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			"trigger":     string(ev.Type),
		},
		"org_id": ev.OrgID.String(),
	}
}

// Render replaces {{ path }} placeholders in s. Unknown paths render empty.
func Render(s string, vars map[string]any) string {
	if !isTemplated(s) {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := Lookup(vars, key)
		if !ok || v == nil {
			return ""
		}
		return toString(v)
	})
}

// RenderParams renders every string in params, recursing into maps and slices.
// A string that is exactly one placeholder keeps the referenced value's type.
func RenderParams(params map[string]any, vars map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = renderValue(v, vars)
	}
	return out
}

func renderValue(v any, vars map[string]any) any {
	switch val := v.(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		if loc := placeholder.FindStringSubmatchIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
			ref, ok := Lookup(vars, trimmed[loc[2]:loc[3]])
			if !ok {
				return ""
			}
			return ref
		}
		return Render(val, vars)
	case map[string]any:
		return RenderParams(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = renderValue(item, vars)
		}
		return out
	default:
		return v
	}
}

func isTemplated(s string) bool {
	return strings.Contains(s, "{{")
}
