// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package telegram

import (
	"fmt"
	"strings"
)

// ParsePhone normalizes a user-entered phone number to bare digits.
// It tolerates the usual human formatting (leading +, spaces, dashes,
// dots, parentheses) and rejects anything else. The result is the
// international number without the plus sign, which is the form the
// engine expects.
func ParsePhone(input string) (string, error) {
	var digits strings.Builder
	for index, r := range input {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && index == 0:
			// Leading plus only.
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// Formatting characters.
		default:
			return "", fmt.Errorf("telegram: invalid character %q in phone number", r)
		}
	}

	normalized := digits.String()
	if len(normalized) < 7 || len(normalized) > 15 {
		return "", fmt.Errorf("telegram: phone number must have 7 to 15 digits, got %d", len(normalized))
	}
	return normalized, nil
}
