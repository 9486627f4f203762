package enums

import "fmt"

// TransactionMode selects whether authorized charges are captured
// immediately or held for a manual capture step.
type TransactionMode string

const (
	TransactionModeCapture  TransactionMode = "capture"
	TransactionModeAuthOnly TransactionMode = "auth_only"
)

var validTransactionModes = []TransactionMode{
	TransactionModeCapture,
	TransactionModeAuthOnly,
}

// String implements fmt.Stringer.
func (m TransactionMode) String() string {
	return string(m)
}

// IsValid reports whether the value is known.
func (m TransactionMode) IsValid() bool {
	for _, candidate := range validTransactionModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseTransactionMode converts raw input into a TransactionMode.
func ParseTransactionMode(value string) (TransactionMode, error) {
	for _, candidate := range validTransactionModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction mode %q", value)
}
