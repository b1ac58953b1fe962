package model

import "strings"

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// NormalizeEmail is the stored form of every account email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
