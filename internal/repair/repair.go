// Package repair recovers malformed structured LLM output into parseable
// JSON.
//
// Models asked for "JSON only" still wrap their answers in markdown fences,
// prepend prose, truncate mid-string when they hit a token limit, or emit
// trailing commas. Repair is strictly best-effort: it never invents content,
// it only removes wrappers and closes what the model left open. Callers that
// still cannot parse the repaired text must treat the response as a degraded
// empty result rather than fail the batch.
package repair

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoStructure is returned when the input contains no JSON object or array
// at all — there is nothing to repair.
var ErrNoStructure = errors.New("repair: no JSON structure found")

// Decode parses raw into v, repairing the text first when a direct parse
// fails. Returns an error only when the content is unrecoverable.
func Decode(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	fixed, err := Repair(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}

// Repair applies the full recovery sequence to raw and returns text that
// parses as JSON. The stages run in order:
//
//  1. Strip markdown code fences and surrounding prose.
//  2. Cut to the outermost JSON object/array boundary.
//  3. Remove trailing commas before closing delimiters.
//  4. Close an unterminated string and balance open braces/brackets
//     (truncation recovery).
//
// Returns [ErrNoStructure] when no opening delimiter exists anywhere in raw.
func Repair(raw string) (string, error) {
	s := StripFences(raw)
	s = cutToStructure(s)
	if s == "" {
		return "", ErrNoStructure
	}
	s = stripTrailingCommas(s)
	s = closeTruncated(s)

	if !json.Valid([]byte(s)) {
		// One more pass: truncation closing can expose a fresh trailing
		// comma ({"a": 1,  →  {"a": 1,}).
		s = closeTruncated(stripTrailingCommas(s))
		if !json.Valid([]byte(s)) {
			return "", errors.New("repair: content unrecoverable")
		}
	}
	return s, nil
}

// StripFences removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// cutToStructure trims s to the first opening delimiter and, when a matching
// close exists, the last closing delimiter. Prose before and after the
// structure is discarded.
func cutToStructure(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	s = s[start:]

	var closer byte = '}'
	if s[0] == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(s, closer); end > 0 {
		// Keep everything through the last closer; a truncated tail after
		// it is model chatter, not data.
		return s[:end+1]
	}
	// No closer at all — truncated output, handled by closeTruncated.
	return s
}

// stripTrailingCommas removes commas that directly precede a closing brace
// or bracket, ignoring commas inside string literals.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			// Look ahead past whitespace for a closing delimiter.
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closeTruncated closes an unterminated string literal and appends the
// closing delimiters for every brace/bracket still open at end of input.
// A dangling trailing comma or colon left by the cut is dropped first.
func closeTruncated(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) == 0 && !inString {
		return s
	}

	if inString {
		s += `"`
	}
	s = strings.TrimRight(s, " \t\n\r")
	if strings.HasSuffix(s, ",") || strings.HasSuffix(s, ":") {
		if strings.HasSuffix(s, ":") {
			// A key with its value cut off entirely: null it out.
			s += " null"
		} else {
			s = s[:len(s)-1]
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	return s
}
