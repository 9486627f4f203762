package enums

import "fmt"

// ChargeStatus mirrors the status field reported by Affirm's charge API.
type ChargeStatus string

const (
	ChargeStatusAuthorized ChargeStatus = "authorized"
	ChargeStatusCaptured   ChargeStatus = "captured"
	ChargeStatusVoided     ChargeStatus = "voided"
	ChargeStatusRefunded   ChargeStatus = "refunded"
)

var validChargeStatuses = []ChargeStatus{
	ChargeStatusAuthorized,
	ChargeStatusCaptured,
	ChargeStatusVoided,
	ChargeStatusRefunded,
}

// String implements fmt.Stringer.
func (c ChargeStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c ChargeStatus) IsValid() bool {
	for _, candidate := range validChargeStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further lifecycle transitions are allowed.
func (c ChargeStatus) IsTerminal() bool {
	return c == ChargeStatusVoided || c == ChargeStatusRefunded
}

// ParseChargeStatus converts raw input into a ChargeStatus.
func ParseChargeStatus(value string) (ChargeStatus, error) {
	for _, candidate := range validChargeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid charge status %q", value)
}
