package routing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// templatePart is either a literal chunk or a capture group reference.
type templatePart struct {
	literal string
	group   int // -1 for literal parts
}

// rewriteTemplate is a rewrite target resolved against a compiled pattern.
// Group names are resolved to indexes at compile time so expansion never
// meets an unknown reference.
type rewriteTemplate struct {
	parts []templatePart

	// trimEmptyTail is set when the template ends with "/$N": if group N
	// captured nothing and the matched text did not end in "/", the trailing
	// slash is dropped.
	trimEmptyTail bool
}

// parseRewrite validates target against re and returns the resolved template.
func parseRewrite(target string, re *regexp.Regexp) (*rewriteTemplate, error) {
	tmpl := &rewriteTemplate{}

	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			tmpl.parts = append(tmpl.parts, templatePart{literal: lit.String(), group: -1})
			lit.Reset()
		}
	}

	for i := 0; i < len(target); i++ {
		c := target[i]
		if c != '$' {
			lit.WriteByte(c)

			continue
		}

		if i+1 >= len(target) {
			return nil, errors.Wrapf(ErrInvalidRewrite, "dangling '$' at end of %q", target)
		}

		next := target[i+1]

		var (
			ref  string
			used int
		)

		switch {
		case next == '$':
			lit.WriteByte('$')
			i++

			continue
		case next == '{':
			end := strings.IndexByte(target[i+2:], '}')
			if end < 0 {
				return nil, errors.Wrapf(ErrInvalidRewrite, "unterminated '${' in %q", target)
			}

			ref = target[i+2 : i+2+end]
			used = end + 3
		case isDigit(next):
			j := i + 1
			for j < len(target) && isDigit(target[j]) {
				j++
			}

			ref = target[i+1 : j]
			used = j - i
		case isIdentStart(next):
			j := i + 1
			for j < len(target) && (isIdentStart(target[j]) || isDigit(target[j])) {
				j++
			}

			ref = target[i+1 : j]
			used = j - i
		default:
			return nil, errors.Wrapf(ErrInvalidRewrite, "invalid reference %q in %q", target[i:i+2], target)
		}

		group, err := resolveGroup(ref, re)
		if err != nil {
			return nil, errors.Wrapf(err, "rewrite target %q", target)
		}

		flush()
		tmpl.parts = append(tmpl.parts, templatePart{group: group})
		i += used - 1
	}

	flush()

	if n := len(tmpl.parts); n >= 2 {
		last, prev := tmpl.parts[n-1], tmpl.parts[n-2]
		if last.group >= 0 && prev.group < 0 && strings.HasSuffix(prev.literal, "/") {
			tmpl.trimEmptyTail = true
		}
	}

	return tmpl, nil
}

func resolveGroup(ref string, re *regexp.Regexp) (int, error) {
	if ref == "" {
		return 0, errors.Wrap(ErrInvalidRewrite, "empty group reference")
	}

	if n, err := strconv.Atoi(ref); err == nil {
		if n > re.NumSubexp() {
			return 0, errors.Wrapf(ErrInvalidRewrite,
				"group $%d does not exist, pattern %q has %d groups", n, re.String(), re.NumSubexp())
		}

		return n, nil
	}

	if idx := re.SubexpIndex(ref); idx >= 0 {
		return idx, nil
	}

	return 0, errors.Wrapf(ErrInvalidRewrite, "named group %q does not exist", ref)
}

// expand builds the forwarded path from the submatch indexes of path.
func (t *rewriteTemplate) expand(path string, submatch []int) string {
	var sb strings.Builder

	lastEmpty := false

	for _, part := range t.parts {
		if part.group < 0 {
			sb.WriteString(part.literal)

			continue
		}

		start, end := submatch[2*part.group], submatch[2*part.group+1]
		lastEmpty = start < 0 || start == end

		if !lastEmpty {
			sb.WriteString(path[start:end])
		}
	}

	out := sb.String()

	matched := path[submatch[0]:submatch[1]]

	if t.trimEmptyTail && lastEmpty && len(out) > 1 && !strings.HasSuffix(matched, "/") {
		out = strings.TrimSuffix(out, "/")
	}

	if out == "" {
		return "/"
	}

	return out
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
