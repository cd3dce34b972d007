package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxCredentialLength = 128
	// MaxTemplateLength is the longest reply text the marketplace accepts in one message.
	MaxTemplateLength = 1000
)

// ValidateCredential validates a client ID or client secret
func ValidateCredential(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}

	if len(value) > maxCredentialLength {
		return fmt.Errorf("invalid %s length: expected at most %d characters, got %d", name, maxCredentialLength, len(value))
	}

	if strings.IndexFunc(value, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%s must not contain whitespace", name)
	}

	return nil
}

// ValidateMarketplaceUserID validates a numeric marketplace account ID
func ValidateMarketplaceUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user ID cannot be empty")
	}

	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("invalid user ID %q: only digits are allowed", id)
		}
	}

	return nil
}

// NormalizeInput trims surrounding whitespace from user input
func NormalizeInput(s string) string {
	return strings.TrimSpace(s)
}

// ValidateTemplate validates an autoresponder template and returns its normalized form
func ValidateTemplate(template string) (string, error) {
	template = NormalizeInput(template)
	if template == "" {
		return "", fmt.Errorf("template cannot be empty")
	}

	if n := utf8.RuneCountInString(template); n > MaxTemplateLength {
		return "", fmt.Errorf("template is too long: %d characters, at most %d allowed", n, MaxTemplateLength)
	}

	return template, nil
}
