// Package validator holds the pure predicates the flow controller checks user input with.
// Each predicate returns whether the input is acceptable and, if not, a reason
// suitable for showing on the kiosk screen.
package validator

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/simaogato/cryptokiosk-backend/internal/domain"
)

// IsAmountInRange checks limits.Min <= amount <= limits.Max
func IsAmountInRange(amount int64, limits domain.AmountLimits) (bool, string) {
	if amount < limits.Min || amount > limits.Max {
		return false, fmt.Sprintf("amount must be between %d and %d ARS", limits.Min, limits.Max)
	}
	return true, ""
}

// IsPhoneProvided checks the phone number is not blank. Format is not validated.
func IsPhoneProvided(phone string) (bool, string) {
	if strings.TrimSpace(phone) == "" {
		return false, "phone number is required"
	}
	return true, ""
}

// IsCodeValid requires entered to match expected exactly
func IsCodeValid(entered, expected string) (bool, string) {
	if expected == "" {
		return false, "verification code expired, request a new one"
	}
	if subtle.ConstantTimeCompare([]byte(entered), []byte(expected)) != 1 {
		return false, "verification code does not match"
	}
	return true, ""
}

// IsWalletProvided checks a wallet address was presented. Format is not validated.
func IsWalletProvided(address string) (bool, string) {
	if strings.TrimSpace(address) == "" {
		return false, "wallet address is required"
	}
	return true, ""
}
