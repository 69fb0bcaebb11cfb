// Package router implements the Message Router: mention parsing,
// single/broadcast/batch delivery semantics, and cross-project fan-out.
//
// Delivery rides internal/ipc; batch execution reuses the same
// dependency-DAG/topological-wave machinery as the Workflow
// Orchestrator via the shared internal/dag package, applied to
// inter-agent messages instead of workflow steps.
package router

import "regexp"

// mentionPattern matches "@" followed by a word-character token.
var mentionPattern = regexp.MustCompile(`@(\w+)`)

// Mention is a single parsed @-directed message fragment.
type Mention struct {
	Target  string
	Content string
}

// ParseMentions splits text into one Mention per @target token, in
// insertion order. The simple single-mention form "@target …" is captured
// as one mention spanning the whole tail; with multiple mentions, each
// one's content runs up to (but excludes) the next mention.
func ParseMentions(text string) []Mention {
	matches := mentionPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	mentions := make([]Mention, 0, len(matches))
	for i, m := range matches {
		target := text[m[2]:m[3]]
		contentStart := m[1]
		contentEnd := len(text)
		if i+1 < len(matches) {
			contentEnd = matches[i+1][0]
		}
		mentions = append(mentions, Mention{
			Target:  target,
			Content: trimContent(text[contentStart:contentEnd]),
		})
	}
	return mentions
}

// HasMentions reports whether text contains at least one @mention.
func HasMentions(text string) bool {
	return mentionPattern.MatchString(text)
}

// IsBroadcast reports whether text addresses no specific agent and should
// therefore be fanned out to every online agent in the project, excluding
// the sender (glossary: "Broadcast — a mention without a specific target").
func IsBroadcast(text string) bool {
	return !HasMentions(text)
}

func trimContent(s string) string {
	i, j := 0, len(s)
	for i < j && isSpace(s[i]) {
		i++
	}
	for j > i && isSpace(s[j-1]) {
		j--
	}
	return s[i:j]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
