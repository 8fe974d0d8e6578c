package reactor

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Action is a tool invocation written in model text, e.g. "Action: add(15, 7)".
type Action struct {
	Name string
	// Args is a JSON object for named or JSON arguments and a JSON array for
	// positional ones. Nil means the action had no arguments.
	Args json.RawMessage
	Raw  string
}

var (
	// An action on its own line may omit the parentheses; inline ones may not.
	lineAction     = regexp.MustCompile(`(?im)^[ \t]*action[ \t]*:[ \t]*([A-Za-z_][\w-]*)[ \t]*(\()?`)
	inlineAction   = regexp.MustCompile(`(?i)\baction[ \t]*:[ \t]*([A-Za-z_][\w-]*)[ \t]*(\()`)
	namedArgument  = regexp.MustCompile(`^([A-Za-z_]\w*)\s*[=:]\s*(.+)$`)
	trailingCommas = regexp.MustCompile(`,\s*([}\]])`)
)

var errUnterminatedArgs = errors.New("unterminated argument list")

// ParseAction returns the first action written in text. found is false when the
// text contains no action. A non-nil error means an action was written but its
// arguments could not be read; a in that case still carries the tool name.
func ParseAction(text string) (a Action, found bool, err error) {
	m := firstMatch(text, lineAction, inlineAction)
	if m == nil {
		return Action{}, false, nil
	}
	a.Name = text[m[2]:m[3]]
	if m[4] < 0 {
		a.Raw = text[m[0]:m[3]]
		return a, true, nil
	}
	open := m[4]
	end, err := matchParen(text, open)
	if err != nil {
		a.Raw = text[m[0]:]
		return a, true, err
	}
	a.Raw = text[m[0] : end+1]
	a.Args, err = parseArgumentList(text[open+1 : end])
	return a, true, err
}

// firstMatch returns the submatch indices of the earliest match of any pattern.
func firstMatch(text string, patterns ...*regexp.Regexp) []int {
	var best []int
	for _, p := range patterns {
		if m := p.FindStringSubmatchIndex(text); m != nil && (best == nil || m[0] < best[0]) {
			best = m
		}
	}
	return best
}

// matchParen returns the index of the ')' closing the list that starts at open,
// skipping over nested brackets and quoted strings.
func matchParen(text string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
			if depth == 0 {
				if c != ')' {
					return 0, fmt.Errorf("mismatched %q in argument list", c)
				}
				return i, nil
			}
		}
	}
	return 0, errUnterminatedArgs
}

func parseArgumentList(inner string) (json.RawMessage, error) {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil, nil
	}
	if inner[0] == '{' {
		return parseJSONObject(inner)
	}
	segments := splitTopLevel(inner)
	var (
		positional []any
		named      = make(map[string]any)
	)
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, errors.New("empty argument")
		}
		if nm := namedArgument.FindStringSubmatch(seg); nm != nil && !isQuoted(seg) {
			named[nm[1]] = parseValue(strings.TrimSpace(nm[2]))
			continue
		}
		positional = append(positional, parseValue(seg))
	}
	if len(named) > 0 && len(positional) > 0 {
		return nil, errors.New("cannot mix positional and named arguments")
	}
	if len(named) > 0 {
		return json.Marshal(named)
	}
	return json.Marshal(positional)
}

func parseJSONObject(s string) (json.RawMessage, error) {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	fixed := trailingCommas.ReplaceAllString(s, "$1")
	fixed = strings.ReplaceAll(fixed, "'", `"`)
	if json.Valid([]byte(fixed)) {
		return json.RawMessage(fixed), nil
	}
	var v any
	err := json.Unmarshal([]byte(s), &v)
	return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
}

// splitTopLevel splits on commas that are not nested or quoted.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func isQuoted(s string) bool {
	return len(s) >= 2 && (s[0] == '"' || s[0] == '\'')
}

// parseValue reads a JSON literal, a single-quoted string, or falls back to the bare text.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}
