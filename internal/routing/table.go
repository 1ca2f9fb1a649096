package routing

import (
	"net/http"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Match is the outcome of a successful table lookup.
type Match struct {
	// Rule is the rule that matched.
	Rule Rule

	// Backend is the rule's backend.
	Backend Backend

	// Path is the forwarded path, escaped the same way as the input path.
	Path string

	// Rewritten is true when the rule's rewrite target or replacement
	// produced Path.
	Rewritten bool
}

// hostGroup holds the rules of one host in precedence order.
type hostGroup struct {
	host  string
	rules []*compiledRule
}

func (g *hostGroup) match(path string) (Match, bool) {
	for _, rule := range g.rules {
		forwarded, ok := rule.match(path)
		if !ok {
			continue
		}

		return Match{
			Rule:      rule.Rule,
			Backend:   rule.Backend,
			Path:      forwarded,
			Rewritten: rule.rewrite != nil || rule.Replace.IsSet(),
		}, true
	}

	return Match{}, false
}

// Table is an immutable, compiled routing table. It is safe for concurrent
// use; reloads build a new Table.
type Table struct {
	exact    map[string]*hostGroup
	wildcard []*hostGroup // most specific suffix first
	anyHost  *hostGroup

	rules []Rule // every rule in evaluation order, for listing and equality
}

type options struct {
	reservePrefixes bool
}

// Option configures Compile.
type Option func(*options)

// WithReservedPrefixes controls whether the first literal path segment of
// every regex rule is reserved with a 404 rule. Enabled by default.
func WithReservedPrefixes(enabled bool) Option {
	return func(o *options) {
		o.reservePrefixes = enabled
	}
}

// Compile validates rules and builds a Table.
//
// Invalid rules are skipped. When any rule was skipped the returned error is
// an *InvalidRulesError and the Table holds the remaining valid rules, so the
// caller decides whether to refuse the configuration or apply it partially.
// Duplicate rules are dropped, keeping the first declaration.
func Compile(rules []Rule, opts ...Option) (*Table, error) {
	cfg := options{reservePrefixes: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	groups := make(map[string]*hostGroup)
	seen := make(map[key]struct{}, len(rules))

	var invalid []*RuleError

	for i := range rules {
		compiled, err := compileRule(&rules[i], i)
		if err != nil {
			invalid = append(invalid, &RuleError{Rule: rules[i], Err: err})

			continue
		}

		k := compiled.key()
		if _, dup := seen[k]; dup {
			continue
		}

		seen[k] = struct{}{}

		group, ok := groups[k.host]
		if !ok {
			group = &hostGroup{host: k.host}
			groups[k.host] = group
		}

		group.rules = append(group.rules, compiled)
	}

	table := &Table{exact: make(map[string]*hostGroup)}

	for host, group := range groups {
		if cfg.reservePrefixes {
			reservePrefixes(group, len(rules))
		}

		sortRules(group.rules)

		switch {
		case host == "":
			table.anyHost = group
		case strings.HasPrefix(host, "*."):
			table.wildcard = append(table.wildcard, group)
		default:
			table.exact[host] = group
		}
	}

	sort.Slice(table.wildcard, func(i, j int) bool {
		if len(table.wildcard[i].host) != len(table.wildcard[j].host) {
			return len(table.wildcard[i].host) > len(table.wildcard[j].host)
		}

		return table.wildcard[i].host < table.wildcard[j].host
	})

	table.rules = table.listRules()

	if len(invalid) > 0 {
		return table, &InvalidRulesError{Errors: invalid}
	}

	return table, nil
}

//nolint:cyclop // sequential validation steps
func compileRule(rule *Rule, order int) (*compiledRule, error) {
	compiled := &compiledRule{Rule: *rule, order: order}
	compiled.Host = normalizeHost(rule.Host)

	if !validHost(compiled.Host) {
		return nil, errors.Wrapf(ErrInvalidHost, "%q", rule.Host)
	}

	if err := validateBackend(rule.Backend); err != nil {
		return nil, err
	}

	if rule.Path == "" {
		return nil, errors.Wrap(ErrInvalidPath, "empty path")
	}

	switch rule.Mode {
	case Prefix, Exact:
		if !strings.HasPrefix(rule.Path, "/") {
			return nil, errors.Wrapf(ErrInvalidPath, "%q must start with '/'", rule.Path)
		}

		if rule.RewriteTarget != "" {
			return nil, errors.Wrapf(ErrInvalidRewrite,
				"rewrite target %q requires an ImplementationSpecific (regex) path", rule.RewriteTarget)
		}

		if err := validateReplace(rule.Replace); err != nil {
			return nil, err
		}

		compiled.prefix = strings.TrimRight(rule.Path, "/")
	case ImplementationSpecific:
		if rule.Replace.IsSet() {
			return nil, errors.Wrapf(ErrInvalidRewrite,
				"path replacement %q requires a Prefix or Exact path, use a rewrite target", rule.Replace)
		}

		re, err := compileRegex(rule.Path)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidPattern, "%q: %v", rule.Path, err)
		}

		compiled.re = re

		if rule.RewriteTarget != "" {
			tmpl, err := parseRewrite(rule.RewriteTarget, re)
			if err != nil {
				return nil, err
			}

			compiled.rewrite = tmpl
		}
	default:
		return nil, errors.Wrapf(ErrInvalidPath, "unknown match mode %d", int(rule.Mode))
	}

	return compiled, nil
}

func validateReplace(p PathReplace) error {
	switch p.Mode {
	case ReplaceNone:
		return nil
	case ReplacePrefix, ReplaceFull:
		if p.Value != "" && !strings.HasPrefix(p.Value, "/") {
			return errors.Wrapf(ErrInvalidRewrite, "replacement %q must start with '/'", p.Value)
		}

		return nil
	}

	return errors.Wrapf(ErrInvalidRewrite, "unknown replace mode %d", int(p.Mode))
}

func validateBackend(b Backend) error {
	if b.IsStatus() {
		if b.Status < 100 || b.Status > 599 {
			return errors.Wrapf(ErrInvalidBackend, "status %d out of range", b.Status)
		}

		return nil
	}

	if b.Service == "" {
		return errors.Wrap(ErrInvalidBackend, "missing service name")
	}

	if b.PortName == "" && (b.Port < 1 || b.Port > 65535) {
		return errors.Wrapf(ErrInvalidBackend, "service %q: port %d out of range", b.Service, b.Port)
	}

	return nil
}

// reservePrefixes adds a 404 Prefix rule for the literal first segment of
// each regex rule, unless the group already declares a Prefix rule for it.
func reservePrefixes(group *hostGroup, orderBase int) {
	declared := make(map[string]bool)

	for _, rule := range group.rules {
		if rule.Mode == Prefix {
			declared[rule.prefix] = true
		}
	}

	var reserved []*compiledRule

	for _, rule := range group.rules {
		if rule.Mode != ImplementationSpecific {
			continue
		}

		segment := reservedSegment(rule.Path)
		if segment == "" || declared[segment] {
			continue
		}

		declared[segment] = true

		reserved = append(reserved, &compiledRule{
			Rule: Rule{
				Host:    group.host,
				Path:    segment,
				Mode:    Prefix,
				Backend: Backend{Status: http.StatusNotFound},
				Source:  "reserved by " + sourceOf(&rule.Rule),
			},
			prefix:   segment,
			order:    orderBase + len(reserved),
			foldCase: true,
		})
	}

	group.rules = append(group.rules, reserved...)
}

func sourceOf(rule *Rule) string {
	if rule.Source != "" {
		return rule.Source
	}

	return rule.Path
}

// sortRules orders rules by tier, then longest prefix, then declaration.
func sortRules(rules []*compiledRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		ti, tj := rules[i].tier(), rules[j].tier()
		if ti != tj {
			return ti < tj
		}

		if rules[i].Mode == Prefix && len(rules[i].prefix) != len(rules[j].prefix) {
			return len(rules[i].prefix) > len(rules[j].prefix)
		}

		return rules[i].order < rules[j].order
	})
}

// Match selects the host group for host and returns the first matching rule
// for the escaped request path. Only the selected host group is evaluated.
func (t *Table) Match(host, path string) (Match, bool) {
	if path == "" {
		path = "/"
	}

	group := t.groupFor(normalizeHost(host))
	if group == nil {
		return Match{}, false
	}

	return group.match(path)
}

func (t *Table) groupFor(host string) *hostGroup {
	if group, ok := t.exact[host]; ok {
		return group
	}

	for _, group := range t.wildcard {
		if wildcardMatches(group.host[1:], host) {
			return group
		}
	}

	return t.anyHost
}

// Rules returns all rules in evaluation order: exact hosts alphabetically,
// then wildcard hosts, then the any-host group. Reserved prefix rules are
// included.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)

	return out
}

// Len returns the number of rules, including reserved prefix rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Equal reports whether both tables evaluate the same rules in the same order.
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}

	if len(t.rules) != len(other.rules) {
		return false
	}

	for i := range t.rules {
		if t.rules[i].key() != other.rules[i].key() {
			return false
		}
	}

	return true
}

func (t *Table) listRules() []Rule {
	hosts := make([]string, 0, len(t.exact))
	for host := range t.exact {
		hosts = append(hosts, host)
	}

	sort.Strings(hosts)

	groups := make([]*hostGroup, 0, len(hosts)+len(t.wildcard)+1)
	for _, host := range hosts {
		groups = append(groups, t.exact[host])
	}

	groups = append(groups, t.wildcard...)

	if t.anyHost != nil {
		groups = append(groups, t.anyHost)
	}

	var rules []Rule

	for _, group := range groups {
		for _, rule := range group.rules {
			rules = append(rules, rule.Rule)
		}
	}

	return rules
}
