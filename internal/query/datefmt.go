package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Canonical output layouts for every date and time attribute
const (
	DateLayout = "20060102"
	TimeLayout = "150405"
)

// time-of-day layouts, tried before dateparse
var timeOnlyLayouts = []string{"15:04:05", "15:04:05.000000", "150405", "15:04"}

// parseFreeText parses a date, timestamp or time of day without a configured pattern
func parseFreeText(s string) (time.Time, error) {
	for _, layout := range timeOnlyLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return dateparse.ParseAny(s)
}

// javaLayout translates a yyyy-MM-dd style date pattern into a Go time layout.
// Numeric fields next to a delimiter parse without zero padding; fields
// adjacent to another numeric field keep their fixed width.
func javaLayout(pattern string) (string, error) {
	var b strings.Builder
	runes := []rune(pattern)
	prevNumeric := false
	for i := 0; i < len(runes); {
		r := runes[i]

		if !isPatternLetter(r) {
			lit, next, err := patternLiteral(runes, i)
			if err != nil {
				return "", fmt.Errorf("%w: %q", err, pattern)
			}
			b.WriteString(lit)
			i = next
			prevNumeric = false
			continue
		}

		n := 1
		for i+n < len(runes) && runes[i+n] == r {
			n++
		}
		numeric := isNumericField(r, n)
		fixed := numeric && (prevNumeric || (i+n < len(runes) && isNumericFieldAt(runes, i+n)))
		tok, err := layoutToken(r, n, fixed, b.String())
		if err != nil {
			return "", fmt.Errorf("%w: %q", err, pattern)
		}
		b.WriteString(tok)
		i += n
		prevNumeric = numeric
	}
	return b.String(), nil
}

// patternLiteral reads the literal run starting at i: unquoted non-letters
// and quoted text, where '' stands for one quote inside or outside quotes.
// It returns the literal and the index after it.
func patternLiteral(runes []rune, i int) (string, int, error) {
	var lit strings.Builder
	for i < len(runes) && !isPatternLetter(runes[i]) {
		if runes[i] != '\'' {
			lit.WriteRune(runes[i])
			i++
			continue
		}
		if i+1 < len(runes) && runes[i+1] == '\'' {
			lit.WriteRune('\'')
			i += 2
			continue
		}
		// quoted run
		j := i + 1
		for j < len(runes) {
			if runes[j] == '\'' {
				if j+1 < len(runes) && runes[j+1] == '\'' {
					lit.WriteRune('\'')
					j += 2
					continue
				}
				break
			}
			lit.WriteRune(runes[j])
			j++
		}
		if j >= len(runes) {
			return "", 0, ErrUnsupportedPattern
		}
		i = j + 1
	}
	if hasLayoutToken(lit.String()) {
		return "", 0, ErrUnsupportedPattern
	}
	return lit.String(), i, nil
}

// Go reads these inside a layout as date fields, so they cannot be literals
var layoutWords = []string{"Jan", "Mon", "MST", "PM", "pm", "_"}

func hasLayoutToken(lit string) bool {
	for _, r := range lit {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	for _, w := range layoutWords {
		if strings.Contains(lit, w) {
			return true
		}
	}
	return false
}

func isPatternLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNumericField(letter rune, n int) bool {
	switch letter {
	case 'y', 'd', 'H', 'k', 'h', 'K', 'm', 's', 'S':
		return true
	case 'M':
		return n <= 2
	}
	return false
}

func isNumericFieldAt(runes []rune, i int) bool {
	r := runes[i]
	if !isPatternLetter(r) {
		return false
	}
	n := 1
	for i+n < len(runes) && runes[i+n] == r {
		n++
	}
	return isNumericField(r, n)
}

func layoutToken(letter rune, n int, fixed bool, prefix string) (string, error) {
	switch letter {
	case 'y':
		if n == 2 {
			return "06", nil
		}
		return "2006", nil
	case 'M':
		switch n {
		case 1, 2:
			if fixed {
				return "01", nil
			}
			return "1", nil
		case 3:
			return "Jan", nil
		default:
			return "January", nil
		}
	case 'd':
		if fixed {
			return "02", nil
		}
		return "2", nil
	case 'H', 'k':
		return "15", nil
	case 'h', 'K':
		if fixed {
			return "03", nil
		}
		return "3", nil
	case 'm':
		if fixed {
			return "04", nil
		}
		return "4", nil
	case 's':
		if fixed {
			return "05", nil
		}
		return "5", nil
	case 'S':
		// Go only reads fractional seconds after a separator
		if !strings.HasSuffix(prefix, ".") && !strings.HasSuffix(prefix, ",") {
			return "", ErrUnsupportedPattern
		}
		return strings.Repeat("0", n), nil
	case 'a':
		return "PM", nil
	case 'E':
		if n <= 3 {
			return "Mon", nil
		}
		return "Monday", nil
	case 'z':
		return "MST", nil
	case 'Z':
		return "-0700", nil
	case 'X':
		switch n {
		case 1:
			return "-07", nil
		case 2:
			return "-0700", nil
		default:
			return "-07:00", nil
		}
	}
	return "", ErrUnsupportedPattern
}
