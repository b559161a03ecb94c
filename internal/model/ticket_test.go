package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAvailableTicket() *Ticket {
	return &Ticket{
		ID:          "ticket-1",
		EventID:     "event-1",
		InventoryID: "inv-1",
		Status:      TicketAvailable,
		PriceCents:  1000,
		Currency:    "EUR",
		Seat:        SeatForIndex(0),
	}
}

func TestTicket_FullLifecycle(t *testing.T) {
	now := time.Now().UTC()
	tk := newAvailableTicket()

	require.NoError(t, tk.Reserve("user-a", now.Add(15*time.Minute)))
	assert.Equal(t, TicketReserved, tk.Status)
	require.NotNil(t, tk.UserID)
	assert.Equal(t, "user-a", *tk.UserID)
	require.NotNil(t, tk.ReservedExpiresAt)

	require.NoError(t, tk.Purchase("user-a", now, "proof", "CODE01"))
	assert.Equal(t, TicketPurchased, tk.Status)
	assert.NotNil(t, tk.PurchaseDate)
	assert.Equal(t, "proof", tk.QRProof)
	assert.Equal(t, "CODE01", tk.ValidationCode)
	assert.Nil(t, tk.ReservedExpiresAt)

	require.NoError(t, tk.MarkUsed())
	assert.Equal(t, TicketUsed, tk.Status)

	// No transition leaves used except a forced close-out.
	err := tk.MarkUsed()
	assert.ErrorIs(t, err, ErrConflict)
	_, err = tk.Cancel("user-a", false)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestTicket_ReserveRequiresAvailable(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []string{TicketReserved, TicketPurchased, TicketCancelled, TicketUsed} {
		tk := newAvailableTicket()
		tk.Status = status
		err := tk.Reserve("user-a", now.Add(time.Minute))
		assert.ErrorIs(t, err, ErrConflict, "status %s", status)
	}
}

func TestTicket_PurchaseByStranger(t *testing.T) {
	now := time.Now().UTC()
	tk := newAvailableTicket()
	require.NoError(t, tk.Reserve("user-a", now.Add(time.Minute)))

	err := tk.Purchase("user-b", now, "proof", "CODE")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, TicketReserved, tk.Status, "failed purchase must not move the ticket")
}

func TestTicket_PurchaseAfterExpiry(t *testing.T) {
	now := time.Now().UTC()
	tk := newAvailableTicket()
	require.NoError(t, tk.Reserve("user-a", now.Add(-time.Second)))

	err := tk.Purchase("user-a", now, "proof", "CODE")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, TicketReserved, tk.Status)
}

func TestTicket_CancelOwnership(t *testing.T) {
	now := time.Now().UTC()

	tk := newAvailableTicket()
	require.NoError(t, tk.Reserve("user-a", now.Add(time.Minute)))
	_, err := tk.Cancel("user-b", false)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, TicketReserved, tk.Status)

	// Administrators may cancel any open ticket.
	prior, err := tk.Cancel("admin-1", true)
	require.NoError(t, err)
	assert.Equal(t, TicketReserved, prior)
	assert.Equal(t, TicketCancelled, tk.Status)
}

func TestTicket_CancelledIsTerminal(t *testing.T) {
	now := time.Now().UTC()
	tk := newAvailableTicket()
	require.NoError(t, tk.Reserve("user-a", now.Add(time.Minute)))
	_, err := tk.Cancel("user-a", false)
	require.NoError(t, err)

	assert.ErrorIs(t, tk.Reserve("user-b", now.Add(time.Minute)), ErrConflict)
	assert.ErrorIs(t, tk.Purchase("user-a", now, "p", "c"), ErrConflict)
	assert.ErrorIs(t, tk.MarkUsed(), ErrConflict)
	_, changed := tk.ForceCancel()
	assert.False(t, changed)
}

func TestTicket_ReservationLapsed(t *testing.T) {
	now := time.Now().UTC()
	tk := newAvailableTicket()
	assert.False(t, tk.ReservationLapsed(now), "available tickets never lapse")

	require.NoError(t, tk.Reserve("user-a", now.Add(time.Minute)))
	assert.False(t, tk.ReservationLapsed(now))
	assert.True(t, tk.ReservationLapsed(now.Add(2*time.Minute)))
}

func TestSeatForIndex_Deterministic(t *testing.T) {
	assert.Equal(t, SeatInfo{Row: 1, Seat: 1}, SeatForIndex(0))
	assert.Equal(t, SeatInfo{Row: 1, Seat: 10}, SeatForIndex(9))
	assert.Equal(t, SeatInfo{Row: 2, Seat: 1}, SeatForIndex(10))
	assert.Equal(t, SeatInfo{Row: 3, Seat: 5}, SeatForIndex(24))
}

func TestAmountConversion(t *testing.T) {
	assert.Equal(t, int64(1050), CentsFromAmount(10.50))
	assert.Equal(t, int64(999), CentsFromAmount(9.99))
	assert.Equal(t, int64(0), CentsFromAmount(-3))
	assert.InDelta(t, 10.50, AmountFromCents(1050), 1e-9)
}

func TestErrSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrNotFound, ErrConflict, ErrForbidden, ErrInvariant, ErrInvalidProof, ErrEventNotFound, ErrEventUnavailable, ErrUpstream}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b))
		}
	}
}
