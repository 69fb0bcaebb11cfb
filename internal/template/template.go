// Package template provides the centralized {stepId.field} output
// substitution used by the Workflow Orchestrator, so every reference to
// a prior step's output resolves through one deterministic code path.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

// refPattern matches {stepId.field} and {stepId.field.nested} references.
var refPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\.([a-zA-Z0-9_.\-]+)\}`)

// Outputs maps a step ID to its output fields, flattened to dotted keys
// (e.g. "result.count") so nested JSON output is addressable.
type Outputs map[string]map[string]any

// Resolve substitutes every {stepId.field} reference in text with the
// corresponding value from outputs. A reference to a step or field
// that does not exist is left untouched in the output; unresolvable
// refs surface at execution time as missing data, not as a template
// error.
func Resolve(text string, outputs Outputs) string {
	return refPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := refPattern.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		stepID, field := parts[1], parts[2]

		fields, ok := outputs[stepID]
		if !ok {
			return match
		}
		value, ok := lookup(fields, field)
		if !ok {
			return match
		}
		return stringify(value)
	})
}

// lookup resolves a dotted field path against a flat or nested map,
// walking into nested maps for compound paths like "result.count".
func lookup(fields map[string]any, field string) (any, bool) {
	if v, ok := fields[field]; ok {
		return v, true
	}

	segs := strings.Split(field, ".")
	var cur any = fields
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Lookup resolves a dotted "stepId.field" reference against outputs,
// returning the raw (unstringified) value. Used by condition evaluation,
// which needs typed values rather than the stringified substitution
// Resolve performs for step task text.
func Lookup(outputs Outputs, ref string) (any, bool) {
	parts := strings.SplitN(ref, ".", 2)
	if len(parts) != 2 {
		return nil, false
	}
	fields, ok := outputs[parts[0]]
	if !ok {
		return nil, false
	}
	return lookup(fields, parts[1])
}

// Warning flags a {stepId.field} reference to a step that exists in
// the workflow but that the referencing step does not declare a
// dependency on. Substitution still happens at run time; the warning
// records that the referenced output may not be terminal yet when the
// referencing step runs.
type Warning struct {
	StepID string `json:"stepId"` // the step whose text carries the reference
	Ref    string `json:"ref"`    // the referenced step id
}

func (w Warning) String() string {
	return fmt.Sprintf("step %s references output of %s, which is not among its dependencies", w.StepID, w.Ref)
}

// CheckRefs classifies every {stepId.field} reference in text for the
// step selfID with declared deps. A reference to a step absent from
// exists is an error; a reference to an existing step that is neither
// selfID nor one of deps is reported as a Warning, never an error.
func CheckRefs(text, selfID string, deps []string, exists func(string) bool) ([]Warning, error) {
	var warnings []Warning
	for _, ref := range References(text) {
		if !exists(ref) {
			return nil, fmt.Errorf("step %q references unknown output %q", selfID, ref)
		}
		if ref == selfID {
			continue
		}
		declared := false
		for _, d := range deps {
			if d == ref {
				declared = true
				break
			}
		}
		if !declared {
			warnings = append(warnings, Warning{StepID: selfID, Ref: ref})
		}
	}
	return warnings, nil
}

// References returns the set of step IDs referenced by text, in order of
// first appearance, used by CheckRefs to classify each reference.
func References(text string) []string {
	matches := refPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	var ids []string
	for _, m := range matches {
		if len(m) != 3 {
			continue
		}
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}
