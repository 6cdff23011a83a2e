package appointment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fee(desc string, amount int64) Fee {
	return Fee{Description: desc, Amount: decimal.NewFromInt(amount)}
}

func TestLedgerTotal(t *testing.T) {
	l := NewLedger(decimal.NewFromInt(100))
	require.NoError(t, l.Append(fee("x-ray", 10)))
	require.NoError(t, l.Append(fee("dressing", 5)))

	assert.True(t, l.Total().Equal(decimal.NewFromInt(115)), "got %s", l.Total())
	assert.True(t, l.ExtrasTotal().Equal(decimal.NewFromInt(15)))
	assert.True(t, l.Base().Equal(decimal.NewFromInt(100)))
}

func TestLedgerTotalIsOrderIndependent(t *testing.T) {
	fees := []Fee{
		fee("a", 10),
		fee("b", 5),
		{Description: "c", Amount: decimal.RequireFromString("0.10")},
		{Description: "d", Amount: decimal.RequireFromString("0.20")},
	}

	forward := NewLedger(decimal.NewFromInt(100))
	backward := NewLedger(decimal.NewFromInt(100))
	for i := range fees {
		require.NoError(t, forward.Append(fees[i]))
		require.NoError(t, backward.Append(fees[len(fees)-1-i]))
	}

	assert.True(t, forward.Total().Equal(backward.Total()))
	assert.Equal(t, "115.3", forward.Total().String())
}

func TestLedgerAppendRejectsInvalidFees(t *testing.T) {
	l := NewLedger(decimal.NewFromInt(100), fee("consult", 20))

	err := l.Append(fee("refund", -5))
	assert.ErrorIs(t, err, ErrInvalidFee)

	err = l.Append(fee("   ", 5))
	assert.ErrorIs(t, err, ErrInvalidFee)

	require.Len(t, l.Fees(), 1)
	assert.True(t, l.Total().Equal(decimal.NewFromInt(120)))
}

func TestLedgerFeesAreCopies(t *testing.T) {
	l := NewLedger(decimal.Zero, fee("a", 1))
	fees := l.Fees()
	fees[0].Description = "changed"

	assert.Equal(t, "a", l.Fees()[0].Description)
}

func TestLedgerZeroAmountAllowed(t *testing.T) {
	l := NewLedger(decimal.NewFromInt(50))
	require.NoError(t, l.Append(fee("waived follow-up", 0)))
	assert.True(t, l.Total().Equal(decimal.NewFromInt(50)))
}
