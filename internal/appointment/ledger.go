package appointment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidFee = errors.New("invalid fee")

// Ledger carries an appointment's base price and its append-only extra fees.
// It is currency-agnostic: amounts are in whatever unit the base price uses.
type Ledger struct {
	base decimal.Decimal
	fees []Fee
}

func NewLedger(base decimal.Decimal, fees ...Fee) Ledger {
	return Ledger{base: base, fees: append([]Fee(nil), fees...)}
}

func ValidateFee(f Fee) error {
	if strings.TrimSpace(f.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidFee)
	}
	if f.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidFee)
	}
	return nil
}

// Append adds a fee without touching earlier entries.
func (l *Ledger) Append(f Fee) error {
	if err := ValidateFee(f); err != nil {
		return err
	}
	f.Description = strings.TrimSpace(f.Description)
	l.fees = append(l.fees, f)
	return nil
}

func (l Ledger) Base() decimal.Decimal {
	return l.base
}

func (l Ledger) Fees() []Fee {
	return append([]Fee(nil), l.fees...)
}

func (l Ledger) ExtrasTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, f := range l.fees {
		sum = sum.Add(f.Amount)
	}
	return sum
}

func (l Ledger) Total() decimal.Decimal {
	return l.base.Add(l.ExtrasTotal())
}
