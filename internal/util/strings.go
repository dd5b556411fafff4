// Package util provides small helpers shared across the auth server
// packages.
package util

// SafeTruncate truncates a string to maxLen characters without panicking.
// Used when logging prefixes of sensitive values like grant IDs, where only
// enough of the value to correlate log lines should ever appear.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
