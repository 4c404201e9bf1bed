// Package gateway turns raw querystrings into declared-field filters for
// the generic list endpoints. Unknown keys are ignored; a recognised key
// with a malformed value poisons the query so the caller returns an empty
// result instead of an unfiltered one.
package gateway

import (
	"net/url"
	"strings"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/ids"
)

// inSuffix marks a set-membership filter; its value must be a bracketed
// comma list such as [a,b,c].
const inSuffix = "__in"

// ParseFilters matches each querystring key case-insensitively as a
// substring against the entity's declared field names. When a key matches
// several fields the longest field wins, so Association__Department beats
// Association. The second return is false when a matched key carries a
// malformed value; the caller must then answer with zero records.
func ParseFilters(values url.Values, fields []string) ([]directory.Filter, bool) {
	var filters []directory.Filter
	for key, raw := range values {
		if len(raw) == 0 {
			continue
		}
		field := matchField(key, fields)
		if field == "" {
			continue
		}
		if strings.HasSuffix(strings.ToLower(key), inSuffix) {
			members, ok := parseInList(raw[0])
			if !ok {
				return nil, false
			}
			filters = append(filters, directory.Filter{Field: field, Values: members})
			continue
		}
		v := strings.TrimSpace(raw[0])
		if v == "" {
			return nil, false
		}
		filters = append(filters, directory.Filter{Field: field, Values: []string{v}})
	}
	return filters, true
}

func matchField(key string, fields []string) string {
	lower := strings.ToLower(strings.TrimSuffix(strings.ToLower(key), inSuffix))
	best := ""
	for _, f := range fields {
		if strings.Contains(lower, strings.ToLower(f)) && len(f) > len(best) {
			best = f
		}
	}
	return best
}

// parseInList accepts [a,b,c] and rejects everything else.
func parseInList(raw string) ([]string, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '[' || raw[len(raw)-1] != ']' {
		return nil, false
	}
	parts := strings.Split(raw[1:len(raw)-1], ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, false
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// CheckID short-circuits lookups for ids that cannot possibly exist. The
// answer is the same ErrNotFound a well-formed but absent id produces.
func CheckID(raw string) error {
	if !ids.Valid(raw) {
		return directory.ErrNotFound
	}
	return nil
}
