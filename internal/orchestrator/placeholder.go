package orchestrator

import (
	"log/slog"
	"strings"
)

// resolvePlaceholders walks a subtask's input map and replaces any
// whole-value string of the form {{<subtask_id>(.result)?(.<path>)*}} with
// the value it resolves to against the already-collected results
// (spec.md §4.6.3). Resolution is whole-value only: a placeholder embedded
// in a larger string is left untouched. If resolution fails at any step,
// the original string is left unchanged and a warning is logged.
func resolvePlaceholders(input map[string]interface{}, results map[string]map[string]interface{}, logger *slog.Logger) map[string]interface{} {
	if input == nil {
		return nil
	}
	resolved := make(map[string]interface{}, len(input))
	for k, v := range input {
		resolved[k] = resolveValue(v, results, logger)
	}
	return resolved
}

func resolveValue(v interface{}, results map[string]map[string]interface{}, logger *slog.Logger) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	placeholder, ok := asPlaceholder(s)
	if !ok {
		return v
	}

	resolvedValue, ok := resolvePath(placeholder, results)
	if !ok {
		logger.Warn("failed to resolve dependency placeholder", "placeholder", s)
		return v
	}
	return resolvedValue
}

// asPlaceholder reports whether s is exactly of the form {{...}} and
// returns the inner content.
func asPlaceholder(s string) (string, bool) {
	if !strings.HasPrefix(s, "{{") || !strings.HasSuffix(s, "}}") {
		return "", false
	}
	if len(s) < 4 {
		return "", false
	}
	return s[2 : len(s)-2], true
}

// resolvePath resolves "<subtask_id>(.result)?(.<path>)*" against results.
func resolvePath(placeholder string, results map[string]map[string]interface{}) (interface{}, bool) {
	segments := strings.Split(placeholder, ".")
	if len(segments) == 0 {
		return nil, false
	}

	subtaskID := segments[0]
	rest := segments[1:]

	outcome, ok := results[subtaskID]
	if !ok {
		return nil, false
	}

	current, ok := outcome["result"]
	if !ok {
		return nil, false
	}

	if len(rest) > 0 && rest[0] == "result" {
		rest = rest[1:]
	}

	for _, segment := range rest {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
