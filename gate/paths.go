package gate

import "strings"

// pathRule classifies a request path as exempt. A rule is either an exact
// path or a pattern whose * segments match any single non-slash token.
type pathRule struct {
	exact    string
	segments []string
}

func compileRules(patterns []string) []pathRule {
	rules := make([]pathRule, 0, len(patterns))
	for _, pat := range patterns {
		if pat == "" {
			continue
		}
		if strings.Contains(pat, "*") {
			rules = append(rules, pathRule{segments: splitPath(pat)})
			continue
		}
		rules = append(rules, pathRule{exact: pat})
	}
	return rules
}

// isExempt reports whether path matches any rule. path must already be a
// bare path component; callers pass r.URL.Path so the query string never
// participates. An unmatched path is protected.
func isExempt(path string, rules []pathRule) bool {
	var parts []string
	for _, rule := range rules {
		if rule.segments == nil {
			if rule.exact == path {
				return true
			}
			continue
		}
		if parts == nil {
			parts = splitPath(path)
		}
		if matchSegments(parts, rule.segments) {
			return true
		}
	}
	return false
}

func matchSegments(parts, pattern []string) bool {
	if len(parts) != len(pattern) {
		return false
	}
	for i, seg := range pattern {
		if seg == "*" {
			continue
		}
		if parts[i] != seg {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}
