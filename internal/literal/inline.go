package literal

import (
	"fmt"
	"strings"
)

// Inline replaces each '?' placeholder in query with the encoded form of the
// matching argument. Placeholders inside single-quoted text are left alone and
// "??" produces a literal '?', matching squirrel's Question format.
func Inline(query string, args []any) (string, error) {
	var b strings.Builder
	b.Grow(len(query) + 16*len(args))

	argIdx := 0
	inQuote := false

	for i := 0; i < len(query); i++ {
		c := query[i]

		if c == '\'' {
			inQuote = !inQuote
			b.WriteByte(c)
			continue
		}

		if c != '?' || inQuote {
			b.WriteByte(c)
			continue
		}

		if i+1 < len(query) && query[i+1] == '?' {
			b.WriteByte('?')
			i++
			continue
		}

		if argIdx >= len(args) {
			return "", fmt.Errorf("literal: query has more placeholders than the %d args given", len(args))
		}

		lit, err := Encode(args[argIdx])
		if err != nil {
			return "", fmt.Errorf("literal: arg %d: %w", argIdx, err)
		}
		b.WriteString(lit)
		argIdx++
	}

	if argIdx != len(args) {
		return "", fmt.Errorf("literal: %d args given but query has %d placeholders", len(args), argIdx)
	}

	return b.String(), nil
}
