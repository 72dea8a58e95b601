package utils

import (
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^\+998\d{9}$`)

// NormalizePhone strips spaces and hyphens.
func NormalizePhone(raw string) string {
	return strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(strings.TrimSpace(raw))
}

// ValidPhone reports whether raw is an Uzbek mobile number after normalization.
func ValidPhone(raw string) bool {
	return phonePattern.MatchString(NormalizePhone(raw))
}
