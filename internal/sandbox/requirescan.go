package sandbox

import (
	"sort"
	"strings"
)

// scanRequires extracts the deduplicated, sorted set of module names the
// compiled code requires with string-literal arguments. The scan is
// lexical: string literals, comments, and regular-expression literals are
// skipped, so a quoted mention of require does not count as an import.
// Dynamic require expressions are invisible to this scan; they are caught
// at real execution time by the in-engine resolver.
func scanRequires(code string) []string {
	seen := make(map[string]bool)

	var (
		i        int
		n        = len(code)
		lastSig  byte // last significant byte outside strings and comments
		lastWord string
	)

	for i < n {
		c := code[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '/' && i+1 < n && code[i+1] == '/':
			for i < n && code[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && code[i+1] == '*':
			end := strings.Index(code[i+2:], "*/")
			if end < 0 {
				i = n
			} else {
				i += 2 + end + 2
			}

		case c == '"' || c == '\'' || c == '`':
			i = skipStringLiteral(code, i)
			lastSig, lastWord = c, ""

		case c == '/' && regexCanFollow(lastSig, lastWord):
			i = skipRegexLiteral(code, i)
			lastSig, lastWord = '/', ""

		case isIdentStart(c):
			j := i + 1
			for j < n && isIdentPart(code[j]) {
				j++
			}
			word := code[i:j]
			if word == "require" && lastSig != '.' {
				if name, next, ok := literalRequireArg(code, j); ok {
					seen[name] = true
					i, lastSig, lastWord = next, ')', ""
					continue
				}
			}
			i, lastSig, lastWord = j, word[len(word)-1], word

		default:
			lastSig, lastWord = c, ""
			i++
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// literalRequireArg matches the tail of a literal require call starting
// right after the require identifier: an opening paren, one plain string
// literal, and a closing paren. Anything else is a dynamic require.
func literalRequireArg(code string, i int) (string, int, bool) {
	i = skipSpace(code, i)
	if i >= len(code) || code[i] != '(' {
		return "", 0, false
	}
	i = skipSpace(code, i+1)
	if i >= len(code) || (code[i] != '"' && code[i] != '\'') {
		return "", 0, false
	}
	quote := code[i]
	i++
	start := i
	for i < len(code) && code[i] != quote && code[i] != '\\' && code[i] != '\n' {
		i++
	}
	if i >= len(code) || code[i] != quote || i == start {
		return "", 0, false
	}
	name := code[start:i]
	i = skipSpace(code, i+1)
	if i >= len(code) || code[i] != ')' {
		return "", 0, false
	}

	return name, i + 1, true
}

// skipStringLiteral advances past the string literal opening at i.
// Template-literal substitutions are skipped with the rest of the
// literal; a require inside one is dynamic from this scan's perspective.
func skipStringLiteral(code string, i int) int {
	quote := code[i]
	i++
	for i < len(code) {
		switch code[i] {
		case '\\':
			i += 2
		case quote:
			return i + 1
		default:
			i++
		}
	}

	return i
}

func skipRegexLiteral(code string, i int) int {
	i++
	inClass := false
	for i < len(code) {
		switch code[i] {
		case '\\':
			i += 2
			continue
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				return i + 1
			}
		case '\n':
			return i
		}
		i++
	}

	return i
}

// regexCanFollow reports whether a slash at the current position opens a
// regular-expression literal rather than a division operator, judged from
// the preceding token.
func regexCanFollow(lastSig byte, lastWord string) bool {
	switch lastWord {
	case "return", "typeof", "instanceof", "in", "of", "new", "delete", "void", "throw", "case", "do", "else":
		return true
	}
	if lastWord != "" {
		return false
	}
	switch lastSig {
	case 0, '(', ',', '=', ':', '[', '!', '&', '|', '?', '{', '}', ';', '+', '-', '*', '%', '<', '>', '~', '^':
		return true
	}

	return false
}

func skipSpace(code string, i int) int {
	for i < len(code) {
		switch code[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}

	return i
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
