package toolemu

import (
	"fmt"
	"strings"
	"unicode"
)

// element is a tagged block <Name>Inner</Name>. Inner is kept raw; nested
// elements are parsed on demand with parseElements.
type element struct {
	Name  string
	Inner string
}

// parseElements parses a sequence of sibling elements separated by
// whitespace. Bare text between elements is an error.
func parseElements(s string) ([]element, error) {
	var out []element
	for {
		el, rest, ok, err := nextElement(s)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, el)
		s = rest
	}
}

// nextElement parses the first element of s. ok is false when s holds only
// whitespace.
func nextElement(s string) (el element, rest string, ok bool, err error) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	if s == "" {
		return element{}, "", false, nil
	}
	if s[0] != '<' {
		return element{}, "", false, fmt.Errorf("unexpected text %q", excerpt(s))
	}

	end := strings.IndexByte(s, '>')
	if end < 0 {
		return element{}, "", false, fmt.Errorf("unterminated tag %q", excerpt(s))
	}
	name := s[1:end]
	if name == "" || strings.ContainsAny(name, "</> \t\r\n") {
		return element{}, "", false, fmt.Errorf("invalid tag %q", s[:end+1])
	}

	open, closing := "<"+name+">", "</"+name+">"
	body := s[end+1:]
	depth, pos := 1, 0
	for {
		ci := strings.Index(body[pos:], closing)
		if ci < 0 {
			return element{}, "", false, fmt.Errorf("missing %s", closing)
		}
		if oi := strings.Index(body[pos:], open); oi >= 0 && oi < ci {
			depth++
			pos += oi + len(open)
			continue
		}
		depth--
		if depth == 0 {
			inner := body[:pos+ci]
			return element{Name: name, Inner: inner}, body[pos+ci+len(closing):], true, nil
		}
		pos += ci + len(closing)
	}
}

func findElement(els []element, name string) (element, bool) {
	for _, el := range els {
		if el.Name == name {
			return el, true
		}
	}
	return element{}, false
}

func excerpt(s string) string {
	const n = 32
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
