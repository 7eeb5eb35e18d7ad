package utils

// MaskSensitiveString masks all but the first and last few characters of a
// secret for display purposes.
func MaskSensitiveString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
