package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordWith(quantity, reserved int) *StockRecord {
	r := NewStockRecord("V-1", "LOC-A")
	r.Quantity = quantity
	r.Reserved = reserved
	return r
}

func TestStockRecordReserve(t *testing.T) {
	tests := []struct {
		name         string
		quantity     int
		reserved     int
		request      int
		expectError  error
		wantReserved int
	}{
		{name: "Reserve part of available", quantity: 10, request: 4, wantReserved: 4},
		{name: "Reserve exactly available", quantity: 10, reserved: 3, request: 7, wantReserved: 10},
		{name: "Reserve one more than available", quantity: 10, reserved: 3, request: 8, expectError: ErrInsufficientStock, wantReserved: 3},
		{name: "Zero quantity", quantity: 10, request: 0, expectError: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := recordWith(tt.quantity, tt.reserved)
			m, err := r.Reserve(tt.request, MovementOptions{})

			if tt.expectError != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, m)
				assert.Equal(t, tt.quantity, r.Quantity)
				assert.Equal(t, tt.reserved, r.Reserved)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantReserved, r.Reserved)
			assert.Equal(t, MovementReserve, m.Type)
			assert.Equal(t, tt.request, m.Quantity)
			assert.Equal(t, 0, m.Delta)
			assert.Equal(t, tt.request, m.ReservedDelta)
			assert.Equal(t, "LOC-A", *m.FromLocationID)
		})
	}
}

func TestStockRecordRelease(t *testing.T) {
	r := recordWith(10, 4)

	_, err := r.Release(5, MovementOptions{})
	assert.ErrorIs(t, err, ErrInvalidMovement)
	assert.Equal(t, 4, r.Reserved)

	m, err := r.Release(4, MovementOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, r.Reserved)
	assert.Equal(t, -4, m.ReservedDelta)
}

func TestStockRecordReserveThenReleaseRestores(t *testing.T) {
	r := recordWith(10, 2)

	_, err := r.Reserve(5, MovementOptions{})
	require.NoError(t, err)
	_, err = r.Release(5, MovementOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, r.Reserved)
	assert.Equal(t, 10, r.Quantity)
}

func TestStockRecordShip(t *testing.T) {
	tests := []struct {
		name        string
		quantity    int
		reserved    int
		request     int
		expectError error
	}{
		{name: "Ship reserved stock", quantity: 10, reserved: 4, request: 4},
		{name: "Ship more than reserved with enough on hand", quantity: 10, reserved: 2, request: 3, expectError: ErrInvalidMovement},
		{name: "Ship more than on hand", quantity: 3, reserved: 3, request: 4, expectError: ErrInsufficientStock},
		{name: "Ship unreserved stock", quantity: 10, reserved: 0, request: 1, expectError: ErrInvalidMovement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := recordWith(tt.quantity, tt.reserved)
			m, err := r.Ship(tt.request, MovementOptions{})

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Equal(t, tt.quantity, r.Quantity)
				assert.Equal(t, tt.reserved, r.Reserved)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.quantity-tt.request, r.Quantity)
			assert.Equal(t, tt.reserved-tt.request, r.Reserved)
			assert.Equal(t, -tt.request, m.Delta)
			assert.Equal(t, -tt.request, m.ReservedDelta)
		})
	}
}

func TestStockRecordReceive(t *testing.T) {
	r := recordWith(0, 0)

	m, err := r.Receive(7, MovementOptions{})
	require.NoError(t, err)
	assert.Equal(t, 7, r.Quantity)
	assert.Equal(t, 7, m.Delta)
	assert.Equal(t, 7, m.QuantityAfter)
	assert.Equal(t, "LOC-A", *m.ToLocationID)
	assert.Nil(t, m.FromLocationID)

	_, err = r.Receive(-1, MovementOptions{})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestStockRecordAdjust(t *testing.T) {
	t.Run("Adjust below reserved fails", func(t *testing.T) {
		r := recordWith(10, 5)
		_, err := r.Adjust(2, MovementOptions{})
		assert.ErrorIs(t, err, ErrInvalidMovement)
		assert.Equal(t, 10, r.Quantity)
	})

	t.Run("Adjust records signed delta", func(t *testing.T) {
		r := recordWith(10, 5)
		m, err := r.Adjust(6, MovementOptions{})
		require.NoError(t, err)
		assert.Equal(t, 6, r.Quantity)
		assert.Equal(t, -4, m.Delta)
		assert.Equal(t, 4, m.Quantity)
	})

	t.Run("Repeated adjust yields zero delta", func(t *testing.T) {
		r := recordWith(3, 0)
		_, err := r.Adjust(9, MovementOptions{})
		require.NoError(t, err)
		m, err := r.Adjust(9, MovementOptions{})
		require.NoError(t, err)
		assert.Equal(t, 9, r.Quantity)
		assert.Equal(t, 0, m.Delta)
	})
}

func TestStockRecordTransfer(t *testing.T) {
	src := recordWith(5, 2)
	dst := NewStockRecord("V-1", "LOC-B")
	opts := MovementOptions{}.WithReference("TRF-1")

	_, _, err := src.Transfer(dst, 4, opts)
	assert.ErrorIs(t, err, ErrInsufficientStock, "only 3 are available")

	out, in, err := src.Transfer(dst, 3, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Quantity)
	assert.Equal(t, 2, src.Reserved)
	assert.Equal(t, 3, dst.Quantity)

	assert.Equal(t, MovementTransferOut, out.Type)
	assert.Equal(t, MovementTransferIn, in.Type)
	assert.Equal(t, "LOC-A", out.LocationID)
	assert.Equal(t, "LOC-B", in.LocationID)
	assert.Equal(t, "TRF-1", *out.Reference)
	assert.Equal(t, *out.Reference, *in.Reference)
	assert.Equal(t, -3, out.Delta)
	assert.Equal(t, 3, in.Delta)
}

func TestStockRecordTransferToSameLocation(t *testing.T) {
	src := recordWith(5, 0)
	_, _, err := src.Transfer(src.Clone(), 1, MovementOptions{})
	assert.ErrorIs(t, err, ErrInvalidMovement)
}

func TestStockRecordSetMinimumAndLowStock(t *testing.T) {
	r := recordWith(4, 0)
	require.NoError(t, r.SetMinimum(5))
	assert.True(t, r.IsLowStock(nil))

	threshold := 3
	assert.False(t, r.IsLowStock(&threshold))

	assert.ErrorIs(t, r.SetMinimum(-1), ErrInvalidQuantity)
}

func TestStockRecordCrossedBelowMinimum(t *testing.T) {
	r := recordWith(10, 0)
	r.Minimum = 5

	_, err := r.Adjust(4, MovementOptions{})
	require.NoError(t, err)
	assert.True(t, r.CrossedBelowMinimum(10))
	assert.False(t, r.CrossedBelowMinimum(4), "already below before the change")
}

func TestLedgerErrorUnwrap(t *testing.T) {
	r := recordWith(1, 0)
	_, err := r.Reserve(2, MovementOptions{})

	var ledgerErr *LedgerError
	require.ErrorAs(t, err, &ledgerErr)
	assert.Equal(t, 2, ledgerErr.Requested)
	assert.Equal(t, 1, ledgerErr.Available)
	assert.Contains(t, err.Error(), "RESERVE")
	assert.False(t, IsRetryable(err))
}

func TestMovementTypeSlug(t *testing.T) {
	assert.Equal(t, "transfer-out", MovementTransferOut.Slug())
	assert.True(t, MovementAdjust.IsValid())
	assert.False(t, OpSetMinimum.IsValid())
}

func TestStockRecordQuantityBounds(t *testing.T) {
	t.Run("Receive up to the maximum", func(t *testing.T) {
		r := recordWith(MaxQuantity-5, 0)
		_, err := r.Receive(5, MovementOptions{})
		require.NoError(t, err)
		assert.Equal(t, MaxQuantity, r.Quantity)
		assert.NoError(t, r.Validate())
	})

	t.Run("Receive past the maximum", func(t *testing.T) {
		r := recordWith(MaxQuantity-5, 2)
		m, err := r.Receive(6, MovementOptions{})
		assert.ErrorIs(t, err, ErrInvalidMovement)
		assert.Nil(t, m)
		assert.Equal(t, MaxQuantity-5, r.Quantity)
	})

	t.Run("Quantity above the maximum", func(t *testing.T) {
		r := recordWith(2, 0)
		_, err := r.Receive(MaxQuantity+1, MovementOptions{})
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		_, err = r.Reserve(MaxQuantity+1, MovementOptions{})
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		_, err = r.Adjust(MaxQuantity+1, MovementOptions{})
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		assert.ErrorIs(t, r.SetMinimum(MaxQuantity+1), ErrInvalidQuantity)
		assert.Equal(t, 2, r.Quantity)
		assert.Equal(t, 0, r.Minimum)
	})

	t.Run("Transfer onto a full destination", func(t *testing.T) {
		src := recordWith(10, 0)
		dest := NewStockRecord("V-1", "LOC-B")
		dest.Quantity = MaxQuantity - 3

		out, in, err := src.Transfer(dest, 4, MovementOptions{})
		assert.ErrorIs(t, err, ErrInvalidMovement)
		assert.Nil(t, out)
		assert.Nil(t, in)
		assert.Equal(t, 10, src.Quantity)
		assert.Equal(t, MaxQuantity-3, dest.Quantity)

		_, _, err = src.Transfer(dest, 3, MovementOptions{})
		require.NoError(t, err)
		assert.Equal(t, MaxQuantity, dest.Quantity)
	})

	t.Run("Validate rejects quantity above the maximum", func(t *testing.T) {
		assert.Error(t, recordWith(MaxQuantity+1, 0).Validate())
	})
}
