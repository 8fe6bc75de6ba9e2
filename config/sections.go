package config

import (
	"sort"
	"strings"
)

// SectionOrder is the canonical order of sections.
var SectionOrder = []string{"META", "CONSENSUS", "VALIDATORS", "SERVICES"}

type pair struct {
	key, value string
}

type section struct {
	name  string
	pairs []pair
}

func (s section) lookup() map[string]string {
	m := make(map[string]string, len(s.pairs))
	for _, p := range s.pairs {
		m[p.key] = p.value
	}
	return m
}

// splitSections cuts the body between preamble and postamble into sections.
// Byte rules must already have passed.
func splitSections(data []byte) ([]section, error) {
	lines := strings.Split(string(data), "\n")
	body := lines[1 : len(lines)-1]

	var out []section
	var cur *section
	afterBlank := false
	for _, line := range body {
		if line == "" {
			if cur == nil || afterBlank {
				return nil, newError(KindCanonical, "CFG-CANON-010", "unexpected blank line")
			}
			afterBlank = true
			continue
		}
		if isSectionHeader(line) {
			if cur != nil && !afterBlank {
				return nil, newError(KindCanonical, "CFG-CANON-010", "missing blank line between sections")
			}
			i := len(out)
			if i >= len(SectionOrder) || SectionOrder[i] != line {
				return nil, newError(KindParse, "CFG-STR-020", "sections missing or out of order")
			}
			out = append(out, section{name: line})
			cur = &out[len(out)-1]
			afterBlank = false
			continue
		}
		if cur == nil {
			return nil, newError(KindParse, "CFG-STR-020", "content before first section")
		}
		if afterBlank {
			return nil, newError(KindCanonical, "CFG-CANON-010", "expected section header after blank line")
		}
		p, err := parsePair(line)
		if err != nil {
			return nil, err
		}
		cur.pairs = append(cur.pairs, p)
	}
	if afterBlank {
		return nil, newError(KindCanonical, "CFG-CANON-010", "blank line before postamble")
	}
	if len(out) != len(SectionOrder) {
		return nil, newError(KindParse, "CFG-STR-020", "sections missing or out of order")
	}
	for _, s := range out {
		seen := make(map[string]bool, len(s.pairs))
		keys := make([]string, 0, len(s.pairs))
		for _, p := range s.pairs {
			if seen[p.key] {
				return nil, newError(KindParse, "CFG-STR-031", "duplicate key "+p.key+" in "+s.name)
			}
			seen[p.key] = true
			keys = append(keys, p.key)
		}
		if !sort.StringsAreSorted(keys) {
			return nil, newError(KindCanonical, "CFG-CANON-020", "keys not sorted in "+s.name)
		}
	}
	return out, nil
}

func parsePair(line string) (pair, error) {
	key, value, ok := strings.Cut(line, ": ")
	if !ok {
		return pair{}, newError(KindParse, "CFG-STR-030", "invalid key-value line")
	}
	if !validKey(key) {
		return pair{}, newError(KindParse, "CFG-STR-030", "invalid key "+key)
	}
	if !validValue(value) {
		return pair{}, newError(KindParse, "CFG-STR-030", "invalid value for "+key)
	}
	return pair{key: key, value: value}, nil
}

func isSectionHeader(line string) bool {
	if line == "" {
		return false
	}
	for _, r := range line {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func validKey(k string) bool {
	if k == "" {
		return false
	}
	for _, r := range k {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func validValue(v string) bool {
	return v != "" &&
		strings.TrimSpace(v) == v &&
		!strings.ContainsAny(v, "\n\r")
}
