package routing

import (
	"net"
	"regexp"
	"strings"
)

// compiledRule is a validated Rule with its matcher state.
type compiledRule struct {
	Rule

	re      *regexp.Regexp
	rewrite *rewriteTemplate
	prefix  string // Prefix mode: rule path without trailing slashes
	order   int    // declaration order, for stable precedence

	// foldCase makes Prefix matching case-insensitive. Set on reserved
	// prefixes so they shadow the same paths as their regex rules.
	foldCase bool
}

// tier orders rules inside a host group: exact, then regex, then prefix.
func (c *compiledRule) tier() int {
	switch c.Mode {
	case Exact:
		return 0
	case ImplementationSpecific:
		return 1
	case Prefix:
		return 2
	}

	return 3
}

// match reports whether path matches and returns the forwarded path.
func (c *compiledRule) match(path string) (string, bool) {
	switch c.Mode {
	case Exact:
		if path != c.Path {
			return "", false
		}

		return c.Replace.apply(c.prefix, path), true
	case Prefix:
		if !prefixMatches(c.prefix, path, c.foldCase) {
			return "", false
		}

		return c.Replace.apply(c.prefix, path), true
	case ImplementationSpecific:
		loc := c.re.FindStringSubmatchIndex(path)
		if loc == nil {
			return "", false
		}

		if c.rewrite == nil {
			return path, true
		}

		return c.rewrite.expand(path, loc), true
	}

	return "", false
}

// prefixMatches implements element-wise prefix matching. prefix has no
// trailing slash; an empty prefix matches everything.
func prefixMatches(prefix, path string, fold bool) bool {
	if prefix == "" {
		return true
	}

	if len(path) < len(prefix) {
		return false
	}

	head := path[:len(prefix)]
	if head != prefix && (!fold || !strings.EqualFold(head, prefix)) {
		return false
	}

	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// compileRegex anchors the pattern at the start of the path and makes it
// case-insensitive, the way NGINX evaluates "~*" locations.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?is)^(?:" + strings.TrimPrefix(pattern, "^") + ")")
}

// reservedSegment returns "/<segment>" when every match of pattern must start
// with a complete literal first path segment, e.g. "/pricing-service" for
// "/pricing-service/api(/|$)(.*)". It returns "" otherwise.
func reservedSegment(pattern string) string {
	plain, err := regexp.Compile(strings.TrimPrefix(pattern, "^"))
	if err != nil {
		return ""
	}

	literal, _ := plain.LiteralPrefix()
	if !strings.HasPrefix(literal, "/") {
		return ""
	}

	end := strings.IndexByte(literal[1:], '/')
	if end <= 0 {
		return ""
	}

	return literal[:end+1]
}

// normalizeHost lowercases a rule or request host, strips any port and maps
// the catch-all spellings to "".
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "*" {
		return ""
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	return strings.TrimSuffix(host, ".")
}

// validHost accepts "", exact hosts and a single leading "*." wildcard label.
func validHost(host string) bool {
	if host == "" {
		return true
	}

	rest := strings.TrimPrefix(host, "*.")
	if rest == "" || strings.Contains(rest, "*") {
		return false
	}

	return !strings.ContainsAny(rest, "/ ")
}

// wildcardMatches reports whether host matches "*.<suffix>" with exactly one
// extra label. suffix includes the leading dot.
func wildcardMatches(suffix, host string) bool {
	if !strings.HasSuffix(host, suffix) {
		return false
	}

	label := host[:len(host)-len(suffix)]

	return label != "" && !strings.Contains(label, ".")
}
