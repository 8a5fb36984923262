package users

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	maxUsernameLength = 100
	fallbackUsername  = "user"
)

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}

// normalizeEmail lowercases the address so one mailbox maps to one user.
func normalizeEmail(email string) string {
	return strings.ToLower(normalize(email))
}

// deriveUsername builds a username slug from the local part of an email address.
func deriveUsername(email string) string {
	localPart, _, _ := strings.Cut(normalizeEmail(email), "@")
	var builder strings.Builder
	for _, character := range localPart {
		switch {
		case character <= unicode.MaxASCII && (unicode.IsLetter(character) || unicode.IsDigit(character)):
			builder.WriteRune(character)
		case character == '.' || character == '-' || character == '_':
			builder.WriteRune(character)
		}
	}
	slug := strings.Trim(builder.String(), ".-_")
	if slug == "" {
		slug = fallbackUsername
	}
	if len(slug) > maxUsernameLength {
		slug = slug[:maxUsernameLength]
	}
	return slug
}

// usernameCandidate returns the base slug for the first attempt and a numbered variant afterwards.
func usernameCandidate(base string, attempt int) string {
	if attempt <= 1 {
		return base
	}
	suffix := fmt.Sprintf("-%d", attempt)
	if len(base)+len(suffix) > maxUsernameLength {
		base = base[:maxUsernameLength-len(suffix)]
	}
	return base + suffix
}
