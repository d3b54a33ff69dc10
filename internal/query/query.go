// Package query translates a restricted set of natural-language patterns
// into encoded sysparm_query strings. Stateless, no network: pattern in,
// query string out. Anything it cannot recognize is passed through
// unchanged, on the assumption the caller already wrote encoded syntax.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// phrase maps one lowercase natural-language fragment to a query term.
var phrases = []struct {
	pattern string
	term    string
}{
	{"assigned to me", "assigned_to=javascript:gs.getUserID()"},
	{"created by me", "sys_created_by=javascript:gs.getUserName()"},
	{"active", "active=true"},
	{"inactive", "active=false"},
	{"open", "state!=6^state!=7"},
	{"closed", "state=7"},
	{"resolved", "state=6"},
	{"unassigned", "assigned_toISEMPTY"},
	{"created today", "sys_created_onONToday@javascript:gs.beginningOfToday()@javascript:gs.endOfToday()"},
	{"created yesterday", "sys_created_onONYesterday@javascript:gs.beginningOfYesterday()@javascript:gs.endOfYesterday()"},
	{"created this week", "sys_created_onONThis week@javascript:gs.beginningOfThisWeek()@javascript:gs.endOfThisWeek()"},
	{"created last week", "sys_created_onONLast week@javascript:gs.beginningOfLastWeek()@javascript:gs.endOfLastWeek()"},
	{"updated today", "sys_updated_onONToday@javascript:gs.beginningOfToday()@javascript:gs.endOfToday()"},
}

// fieldPair matches "field = value" style fragments, with the value
// either bare or quoted.
var fieldPair = regexp.MustCompile(`^([a-z0-9_.]+)\s*=\s*"?([^"]+)"?$`)

// prioritySpeak matches "priority 1" / "p1" shorthand.
var prioritySpeak = regexp.MustCompile(`^p(?:riority\s*)?([1-5])$`)

// Translate converts input into an encoded query string. Fragments are
// separated by commas or the word "and"; recognized fragments become
// query terms joined with "^". Unrecognized input is returned as-is.
func Translate(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	// Already-encoded queries pass straight through.
	if strings.Contains(trimmed, "^") || strings.Contains(trimmed, "ISEMPTY") {
		return trimmed
	}

	var terms []string
	for _, frag := range splitFragments(trimmed) {
		if term, ok := translateFragment(frag); ok {
			terms = append(terms, term)
		} else {
			// One unknown fragment poisons the translation: half-built
			// queries silently return wrong rows. Pass the whole input
			// through instead.
			return trimmed
		}
	}
	return strings.Join(terms, "^")
}

// splitFragments breaks input on commas and standalone "and".
func splitFragments(input string) []string {
	normalized := strings.ToLower(input)
	normalized = strings.ReplaceAll(normalized, " and ", ",")
	parts := strings.Split(normalized, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func translateFragment(frag string) (string, bool) {
	for _, p := range phrases {
		if frag == p.pattern {
			return p.term, true
		}
	}
	if m := prioritySpeak.FindStringSubmatch(frag); m != nil {
		return "priority=" + m[1], true
	}
	if m := fieldPair.FindStringSubmatch(frag); m != nil {
		return fmt.Sprintf("%s=%s", m[1], strings.TrimSpace(m[2])), true
	}
	return "", false
}
