package viewer

import "unicode"

// maxQueryLen bounds the search field; ids are short codes.
const maxQueryLen = 32

// queryInput is the text of the search field.
type queryInput struct {
	runes []rune
}

// Append adds printable runes and reports whether the text changed.
func (q *queryInput) Append(rs []rune) bool {
	changed := false
	for _, r := range rs {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) || len(q.runes) >= maxQueryLen {
			continue
		}
		q.runes = append(q.runes, r)
		changed = true
	}
	return changed
}

// Backspace drops the last rune.
func (q *queryInput) Backspace() bool {
	if len(q.runes) == 0 {
		return false
	}
	q.runes = q.runes[:len(q.runes)-1]
	return true
}

func (q *queryInput) Clear() bool {
	if len(q.runes) == 0 {
		return false
	}
	q.runes = q.runes[:0]
	return true
}

// Replace sets the text verbatim, for queries that did not come from the
// keyboard.
func (q *queryInput) Replace(s string) {
	q.runes = []rune(s)
}

func (q *queryInput) String() string { return string(q.runes) }
