package utils

import (
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var attackPatterns = []*regexp.Regexp{
	// SQL injection
	regexp.MustCompile(`(?i)\bunion\b[\s\S]*\bselect\b`),
	regexp.MustCompile(`(?i)\b(drop|alter|truncate)\s+table\b`),
	regexp.MustCompile(`(?i)\b(insert\s+into|delete\s+from)\b`),
	regexp.MustCompile(`(?i)'\s*(or|and)\s+('?\w+'?\s*=\s*'?\w+'?|true|1)`),
	regexp.MustCompile(`(--\s|--$|/\*|\*/|;\s*$)`),
	// XSS
	regexp.MustCompile(`(?i)<\s*/?\s*(script|iframe|object|embed|svg)\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
}

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	return len(email) <= 254 && emailRegex.MatchString(email)
}

// ValidatePassword validates a password
// Minimum 8 characters, at least one uppercase letter, one lowercase letter, one number
func ValidatePassword(password string) bool {
	if len(password) < 8 || len(password) > 72 {
		return false
	}

	hasUpper := false
	hasLower := false
	hasNumber := false

	for _, char := range password {
		switch {
		case 'A' <= char && char <= 'Z':
			hasUpper = true
		case 'a' <= char && char <= 'z':
			hasLower = true
		case '0' <= char && char <= '9':
			hasNumber = true
		}
	}

	return hasUpper && hasLower && hasNumber
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DetectAttackPattern reports whether any input carries an SQL injection or
// script injection signature. Passwords are never passed here.
func DetectAttackPattern(inputs ...string) bool {
	for _, in := range inputs {
		for _, re := range attackPatterns {
			if re.MatchString(in) {
				return true
			}
		}
	}
	return false
}

// IsNumericCode reports whether code consists of exactly n ASCII digits
func IsNumericCode(code string, n int) bool {
	if len(code) != n {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
