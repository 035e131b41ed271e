package circulation

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultMaxConcurrentLoans is the concurrent loan limit of a newly registered patron.
const DefaultMaxConcurrentLoans = 5

// AccountStatus is the state of a patron account.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

// ParseAccountStatus converts a stored account status value into an AccountStatus.
func ParseAccountStatus(s string) (AccountStatus, error) {
	switch AccountStatus(s) {
	case AccountStatusActive, AccountStatusDisabled:
		return AccountStatus(s), nil
	default:
		return "", fmt.Errorf("unknown account status %q", s)
	}
}

// Patron is read-only to circulation. It is owned by account management.
type Patron struct {
	PatronID           uuid.UUID
	AccountStatus      AccountStatus
	MaxConcurrentLoans int
}

// BuildPatron creates an active Patron with the default loan limit.
func BuildPatron(patronID uuid.UUID) Patron {
	return Patron{
		PatronID:           patronID,
		AccountStatus:      AccountStatusActive,
		MaxConcurrentLoans: DefaultMaxConcurrentLoans,
	}
}

// CheckMayBorrow applies the patron level limits given the number of loans the patron currently holds.
func CheckMayBorrow(patron Patron, openLoanCount int) error {
	if patron.AccountStatus != AccountStatusActive {
		return ErrPatronDisabled
	}

	if openLoanCount >= patron.MaxConcurrentLoans {
		return ErrLoanLimitReached
	}

	return nil
}
