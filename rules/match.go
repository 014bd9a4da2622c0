package rules

import (
	"regexp"
	"strings"
	"unicode"
)

// WildcardMatch reports whether s matches pattern, where '*' matches any run
// of characters and everything else is literal. Matching is case-insensitive
// and anchored: a pattern without '*' must equal s up to case.
func WildcardMatch(s, pattern string) bool {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile("(?is)^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// NormalizeText removes every whitespace rune.
func NormalizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// MatchesPage evaluates the page-level predicates: URL pattern and required
// texts. Element-level predicates are left to the locator.
func (m Matcher) MatchesPage(pageURL, pageText string) bool {
	if m.URLPattern != "" && !WildcardMatch(pageURL, m.URLPattern) {
		return false
	}
	if len(m.ContainsText) == 0 {
		return true
	}
	norm := NormalizeText(pageText)
	for _, want := range m.ContainsText {
		if !strings.Contains(norm, NormalizeText(want)) {
			return false
		}
	}
	return true
}

// Match returns the first enabled template whose page predicates hold, or nil.
func Match(templates []Template, pageURL, pageText string) *Template {
	for i := range templates {
		t := &templates[i]
		if t.Enabled && t.Matcher.MatchesPage(pageURL, pageText) {
			return t
		}
	}
	return nil
}

// Matching returns every enabled template whose page predicates hold, in
// list order.
func Matching(templates []Template, pageURL, pageText string) []Template {
	var out []Template
	for _, t := range templates {
		if t.Enabled && t.Matcher.MatchesPage(pageURL, pageText) {
			out = append(out, t)
		}
	}
	return out
}
