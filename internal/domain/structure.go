package domain

import (
	"regexp"
	"strings"
)

// StructureAll selects every population.
const StructureAll = "all"

var structureRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// ParseStructure parses a population code, case-insensitively. Empty and "all" mean no filter
// and return nil.
func ParseStructure(raw string) (code *string, ok bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == StructureAll {
		return nil, true
	}
	if !structureRe.MatchString(raw) {
		return nil, false
	}
	return &raw, true
}

// StructureLabel returns the label of code in catalogue, falling back to the code itself.
func StructureLabel(catalogue []Structure, code string) string {
	for _, s := range catalogue {
		if s.Code == code {
			return s.Label
		}
	}
	return code
}
