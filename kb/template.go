package kb

import (
	"strconv"
	"strings"

	"github.com/teranos/p8ls/errors"
)

// ValidateTemplate checks the tab-stop markers of an insert template.
//
// Accepted markers are $n, ${n} and ${n:placeholder}. Numbered stops must first
// appear in ascending order starting at 1 with no gaps; a stop may repeat
// (mirrored edits). $0 marks the final cursor and may appear at most once.
// A literal dollar sign must be written as \$.
func ValidateTemplate(template string) error {
	next := 1
	finalSeen := false

	for i := 0; i < len(template); i++ {
		switch template[i] {
		case '\\':
			i++ // escaped character
			continue
		case '$':
		default:
			continue
		}

		n, width, err := parseMarker(template[i+1:])
		if err != nil {
			return errors.Wrapf(err, "template %q at offset %d", template, i)
		}
		i += width

		switch {
		case n == 0:
			if finalSeen {
				return errors.NewInvalidRequestError("template %q has more than one $0", template)
			}
			finalSeen = true
		case n == next:
			next++
		case n > next:
			return errors.NewInvalidRequestError("template %q: tab stop $%d appears before $%d", template, n, next)
		}
	}
	return nil
}

// parseMarker parses the marker following a '$' and returns its number and the
// number of bytes consumed after the '$'.
func parseMarker(s string) (int, int, error) {
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return 0, 0, errors.NewInvalidRequestError("unterminated ${ marker")
		}
		body := s[1:end]
		if colon := strings.IndexByte(body, ':'); colon >= 0 {
			body = body[:colon]
		}
		n, err := strconv.Atoi(body)
		if err != nil || n < 0 || body == "" || body[0] == '+' || body[0] == '-' {
			return 0, 0, errors.NewInvalidRequestError("invalid tab stop ${%s}", s[1:end])
		}
		return n, end + 1, nil
	}

	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return 0, 0, errors.WithHint(
			errors.NewInvalidRequestError("unescaped $"),
			`write a literal dollar sign as \$`)
	}
	n, err := strconv.Atoi(s[:digits])
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid tab stop number")
	}
	return n, digits, nil
}
