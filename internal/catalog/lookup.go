package catalog

import (
	"strings"
	"unicode/utf8"
)

// Find resolves a free-text product reference to a record. Rules are tried in
// order and the first record satisfying a rule wins:
//
//  1. exact name match, ignoring case
//  2. exact match on an alternate name field
//  3. the reference appears inside a record name
//  4. a record name appears inside the reference
func Find(records []Record, reference string) (Record, bool) {
	ref := strings.ToLower(strings.TrimSpace(reference))
	if ref == "" {
		return nil, false
	}
	for _, r := range records {
		if name := strings.ToLower(r.Name()); name != "" && name == ref {
			return r, true
		}
	}
	for _, r := range records {
		for _, key := range alternateNameKeys {
			if alt := strings.ToLower(r.text(key)); alt != "" && alt == ref {
				return r, true
			}
		}
	}
	for _, r := range records {
		for _, key := range containmentKeys {
			if name := strings.ToLower(r.text(key)); name != "" && strings.Contains(name, ref) {
				return r, true
			}
		}
	}
	for _, r := range records {
		for _, key := range containmentKeys {
			if name := strings.ToLower(r.text(key)); name != "" && strings.Contains(ref, name) {
				return r, true
			}
		}
	}
	return nil, false
}

// Search is the looser matcher used when a shopper names a product in chat:
// exact name, then containment, then a shared word longer than two runes,
// then any search word longer than three runes found inside a name.
func Search(records []Record, term string) (Record, bool) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return nil, false
	}
	for _, r := range records {
		if strings.ToLower(r.DisplayName()) == needle {
			return r, true
		}
	}
	for _, r := range records {
		if name := strings.ToLower(r.DisplayName()); name != "" && strings.Contains(name, needle) {
			return r, true
		}
	}
	words := strings.Fields(needle)
	for _, r := range records {
		nameWords := strings.Fields(strings.ToLower(r.DisplayName()))
		for _, w := range words {
			if utf8.RuneCountInString(w) <= 2 {
				continue
			}
			for _, nw := range nameWords {
				if nw == w {
					return r, true
				}
			}
		}
	}
	for _, r := range records {
		name := strings.ToLower(r.DisplayName())
		if name == "" {
			continue
		}
		for _, w := range words {
			if utf8.RuneCountInString(w) > 3 && strings.Contains(name, w) {
				return r, true
			}
		}
	}
	return nil, false
}

// Names lists the display names of records in catalog order.
func Names(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if name := r.DisplayName(); name != "" {
			out = append(out, name)
		}
	}
	return out
}
