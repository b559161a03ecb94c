package model

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActiveInventory(total int) *Inventory {
	return &Inventory{
		ID:               "inv-1",
		EventID:          "event-1",
		TotalTickets:     total,
		AvailableTickets: total,
		BasePriceCents:   1000,
		Currency:         "EUR",
		Status:           InventoryActive,
	}
}

func TestInventory_ReserveUntilSoldOut(t *testing.T) {
	inv := newActiveInventory(2)

	require.NoError(t, inv.Reserve())
	assert.Equal(t, 1, inv.AvailableTickets)
	assert.Equal(t, 1, inv.ReservedTickets)

	require.NoError(t, inv.Reserve())
	assert.Equal(t, 0, inv.AvailableTickets)
	assert.Equal(t, 2, inv.ReservedTickets)
	assert.Equal(t, InventorySoldOut, inv.EffectiveStatus())

	// A third attempt fails with a conflict and never decrements.
	err := inv.Reserve()
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 0, inv.AvailableTickets)
	assert.True(t, inv.Balanced())
}

func TestInventory_ReserveOnInactive(t *testing.T) {
	for _, status := range []string{InventoryDraft, InventoryPaused, InventoryClosed} {
		inv := newActiveInventory(5)
		inv.Status = status
		assert.ErrorIs(t, inv.Reserve(), ErrEventUnavailable, "status %s", status)
	}
}

func TestInventory_PurchaseAndCancelAccounting(t *testing.T) {
	inv := newActiveInventory(2)
	require.NoError(t, inv.Reserve())
	require.NoError(t, inv.Reserve())

	require.NoError(t, inv.ConfirmPurchase())
	assert.Equal(t, 1, inv.ReservedTickets)
	assert.Equal(t, 1, inv.SoldTickets)
	assert.True(t, inv.Balanced())

	require.NoError(t, inv.CancelFrom(TicketReserved))
	assert.Equal(t, 0, inv.ReservedTickets)
	assert.Equal(t, 1, inv.CancelledTickets)
	assert.True(t, inv.Balanced())

	require.NoError(t, inv.CancelFrom(TicketPurchased))
	assert.Equal(t, 0, inv.SoldTickets)
	assert.Equal(t, 2, inv.CancelledTickets)
	assert.True(t, inv.Balanced())

	assert.ErrorIs(t, inv.CancelFrom(TicketUsed), ErrConflict)
	assert.ErrorIs(t, inv.CancelFrom(TicketReserved), ErrInvariant)
}

func TestInventory_ReleaseLapsedReservations(t *testing.T) {
	inv := newActiveInventory(5)
	require.NoError(t, inv.Reserve())
	require.NoError(t, inv.Reserve())

	require.NoError(t, inv.Release(2))
	assert.Equal(t, 5, inv.AvailableTickets)
	assert.Equal(t, 0, inv.ReservedTickets)
	assert.True(t, inv.Balanced())

	assert.ErrorIs(t, inv.Release(1), ErrInvariant)
}

func TestInventory_ResizeGrow(t *testing.T) {
	inv := newActiveInventory(10)
	diff, err := inv.Resize(15)
	require.NoError(t, err)
	assert.Equal(t, 5, diff)
	assert.Equal(t, 15, inv.TotalTickets)
	assert.Equal(t, 15, inv.AvailableTickets)
	assert.True(t, inv.Balanced())
}

func TestInventory_ResizeShrinkBelowSoldIsRejected(t *testing.T) {
	inv := newActiveInventory(10)
	for i := 0; i < 4; i++ {
		require.NoError(t, inv.Reserve())
	}
	require.NoError(t, inv.ConfirmPurchase())
	require.NoError(t, inv.ConfirmPurchase())
	// sold=2 reserved=2 available=6

	_, err := inv.Resize(3)
	assert.ErrorIs(t, err, ErrInvariant)
	assert.Equal(t, 10, inv.TotalTickets, "counters unchanged after rejection")
	assert.Equal(t, 6, inv.AvailableTickets)
	assert.True(t, inv.Balanced())

	// Shrinking down to exactly sold+reserved retires all available tickets.
	diff, err := inv.Resize(4)
	require.NoError(t, err)
	assert.Equal(t, -6, diff)
	assert.Equal(t, 0, inv.AvailableTickets)
	assert.True(t, inv.Balanced())
}

func TestInventory_CloseRetiresOpenTickets(t *testing.T) {
	inv := newActiveInventory(4)
	require.NoError(t, inv.Reserve())
	require.NoError(t, inv.Reserve())
	require.NoError(t, inv.ConfirmPurchase())
	// available=2 reserved=1 sold=1

	open := inv.Close()
	assert.Equal(t, 3, open)
	assert.Equal(t, InventoryClosed, inv.Status)
	assert.Equal(t, 0, inv.AvailableTickets)
	assert.Equal(t, 0, inv.ReservedTickets)
	assert.Equal(t, 1, inv.SoldTickets, "redemption accounting keeps the sold count")
	assert.Equal(t, 3, inv.CancelledTickets)
	assert.True(t, inv.Balanced())

	// Redelivery of the cancellation notification is a no-op.
	assert.Equal(t, 0, inv.Close())
	assert.True(t, inv.Balanced())
}

// TestInventory_ConservationUnderRandomOperations drives a random sequence
// of reserve/purchase/cancel/release/resize/close operations and checks
// the conservation invariant after every step.
func TestInventory_ConservationUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for run := 0; run < 50; run++ {
		inv := newActiveInventory(rng.Intn(30) + 1)
		for step := 0; step < 200; step++ {
			switch rng.Intn(6) {
			case 0:
				_ = inv.Reserve()
			case 1:
				_ = inv.ConfirmPurchase()
			case 2:
				if rng.Intn(2) == 0 {
					_ = inv.CancelFrom(TicketReserved)
				} else {
					_ = inv.CancelFrom(TicketPurchased)
				}
			case 3:
				if inv.ReservedTickets > 0 {
					_ = inv.Release(rng.Intn(inv.ReservedTickets + 1))
				}
			case 4:
				_, _ = inv.Resize(rng.Intn(40))
			case 5:
				if rng.Intn(10) == 0 {
					inv.Close()
				}
			}
			require.True(t, inv.Balanced(),
				"run %d step %d: total=%d available=%d reserved=%d sold=%d cancelled=%d",
				run, step, inv.TotalTickets, inv.AvailableTickets, inv.ReservedTickets, inv.SoldTickets, inv.CancelledTickets)
			require.GreaterOrEqual(t, inv.AvailableTickets, 0)
			require.GreaterOrEqual(t, inv.ReservedTickets, 0)
			require.GreaterOrEqual(t, inv.SoldTickets, 0)
		}
	}
}

// TestScenario_TwoTicketEvent walks the end-to-end counter scenario: two
// tickets, two successful reservations, a third that conflicts, one
// purchase, then an upstream cancellation.
func TestScenario_TwoTicketEvent(t *testing.T) {
	now := time.Now().UTC()
	inv := newActiveInventory(2)
	a := &Ticket{ID: "t-a", EventID: inv.EventID, InventoryID: inv.ID, Status: TicketAvailable, PriceCents: 1000, Currency: "EUR", Seat: SeatForIndex(0)}
	b := &Ticket{ID: "t-b", EventID: inv.EventID, InventoryID: inv.ID, Status: TicketAvailable, PriceCents: 1000, Currency: "EUR", Seat: SeatForIndex(1)}

	require.NoError(t, a.Reserve("user-a", now.Add(15*time.Minute)))
	require.NoError(t, inv.Reserve())
	assert.Equal(t, 1, inv.AvailableTickets)

	require.NoError(t, b.Reserve("user-b", now.Add(15*time.Minute)))
	require.NoError(t, inv.Reserve())
	assert.Equal(t, 0, inv.AvailableTickets)
	assert.Equal(t, 2, inv.ReservedTickets)

	assert.ErrorIs(t, inv.Reserve(), ErrConflict)

	require.NoError(t, a.Purchase("user-a", now, "proof-a", "CODE-A"))
	require.NoError(t, inv.ConfirmPurchase())
	assert.Equal(t, 1, inv.ReservedTickets)
	assert.Equal(t, 1, inv.SoldTickets)
	assert.NotEmpty(t, a.QRProof)
	assert.NotEmpty(t, a.ValidationCode)

	require.NoError(t, a.MarkUsed())
	assert.Equal(t, 1, inv.SoldTickets, "redemption leaves counters alone")

	// Upstream cancellation: B's reserved ticket retires, A's used ticket
	// is force-cancelled by the close-out loop.
	open := inv.Close()
	assert.Equal(t, 1, open)
	prior, changed := b.ForceCancel()
	assert.True(t, changed)
	assert.Equal(t, TicketReserved, prior)
	prior, changed = a.ForceCancel()
	assert.True(t, changed)
	assert.Equal(t, TicketUsed, prior)
	assert.True(t, inv.Balanced())
	assert.Equal(t, 0, inv.ReservedTickets)
}
