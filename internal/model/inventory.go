package model

import (
	"fmt"
	"time"
)

// Inventory statuses. sold_out is derived from the counters and is never
// written to the database; it is reported when AvailableTickets reaches
// zero on an otherwise active inventory.
const (
	InventoryDraft   = "draft"
	InventoryActive  = "active"
	InventoryPaused  = "paused"
	InventorySoldOut = "sold_out"
	InventoryClosed  = "closed"
)

// Inventory aggregates the ticket counters and sale parameters for one
// event. The event itself is owned by the external catalog service; only
// the ticket pool lives here.
//
// Fields:
//  ID               – primary key identifier (UUID).
//  EventID          – the catalog event this pool belongs to (unique).
//  TotalTickets     – number of ticket rows materialized for the event.
//  AvailableTickets – tickets currently sellable.
//  ReservedTickets  – tickets held by a pending reservation.
//  SoldTickets      – tickets purchased (redemption does not change this).
//  CancelledTickets – tickets permanently removed from the sellable pool.
//  BasePriceCents   – default price for newly created tickets.
//  Currency         – ISO currency code, defaults to EUR.
//  SaleStartsAt     – when sales open (inventory creation time).
//  SaleEndsAt       – when sales close (one day before the event starts).
//  Status           – one of the Inventory* constants above.
type Inventory struct {
	ID               string    `json:"id"`
	EventID          string    `json:"event_id"`
	TotalTickets     int       `json:"total_tickets"`
	AvailableTickets int       `json:"available_tickets"`
	ReservedTickets  int       `json:"reserved_tickets"`
	SoldTickets      int       `json:"sold_tickets"`
	CancelledTickets int       `json:"cancelled_tickets"`
	BasePriceCents   int64     `json:"base_price_cents"`
	Currency         string    `json:"currency"`
	SaleStartsAt     time.Time `json:"sale_starts_at"`
	SaleEndsAt       time.Time `json:"sale_ends_at"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Balanced reports whether the conservation invariant holds:
// total == available + reserved + sold + cancelled.
func (inv *Inventory) Balanced() bool {
	return inv.TotalTickets == inv.AvailableTickets+inv.ReservedTickets+inv.SoldTickets+inv.CancelledTickets
}

// EffectiveStatus returns the status as observed by callers, substituting
// sold_out when an active inventory has no available tickets left.
func (inv *Inventory) EffectiveStatus() string {
	if inv.Status == InventoryActive && inv.AvailableTickets == 0 {
		return InventorySoldOut
	}
	return inv.Status
}

// Reserve moves one ticket from available to reserved. It fails with
// ErrConflict when the inventory is exhausted and with ErrEventUnavailable
// when the inventory is not open for sales.
func (inv *Inventory) Reserve() error {
	if inv.Status != InventoryActive {
		return fmt.Errorf("inventory %s is %s: %w", inv.ID, inv.Status, ErrEventUnavailable)
	}
	if inv.AvailableTickets <= 0 {
		return fmt.Errorf("no tickets available for event %s: %w", inv.EventID, ErrConflict)
	}
	inv.AvailableTickets--
	inv.ReservedTickets++
	return nil
}

// ConfirmPurchase moves one ticket from reserved to sold.
func (inv *Inventory) ConfirmPurchase() error {
	if inv.ReservedTickets <= 0 {
		return fmt.Errorf("no reserved tickets to purchase on inventory %s: %w", inv.ID, ErrConflict)
	}
	inv.ReservedTickets--
	inv.SoldTickets++
	return nil
}

// CancelFrom moves one ticket out of the counter matching its prior status
// into cancelled. Used by user-initiated cancellations; the close-out path
// adjusts counters through Close instead.
func (inv *Inventory) CancelFrom(prior string) error {
	switch prior {
	case TicketReserved:
		if inv.ReservedTickets <= 0 {
			return fmt.Errorf("reserved counter underflow on inventory %s: %w", inv.ID, ErrInvariant)
		}
		inv.ReservedTickets--
		inv.CancelledTickets++
	case TicketPurchased:
		if inv.SoldTickets <= 0 {
			return fmt.Errorf("sold counter underflow on inventory %s: %w", inv.ID, ErrInvariant)
		}
		inv.SoldTickets--
		inv.CancelledTickets++
	default:
		return fmt.Errorf("cannot cancel from status %q: %w", prior, ErrConflict)
	}
	return nil
}

// Release returns n lapsed reservations to the available pool. It is used
// by the lazy expiry reclaim that runs before each seat pick.
func (inv *Inventory) Release(n int) error {
	if n < 0 || n > inv.ReservedTickets {
		return fmt.Errorf("cannot release %d of %d reserved tickets: %w", n, inv.ReservedTickets, ErrInvariant)
	}
	inv.ReservedTickets -= n
	inv.AvailableTickets += n
	return nil
}

// Resize applies a new total ticket count. Growth adds to the available
// pool. Shrinking retires available tickets; shrinking below the number of
// sold plus reserved tickets would destroy tickets users already hold and
// is rejected with ErrInvariant, leaving the counters untouched.
func (inv *Inventory) Resize(newTotal int) (diff int, err error) {
	if newTotal < 0 {
		return 0, fmt.Errorf("negative ticket total %d: %w", newTotal, ErrInvariant)
	}
	diff = newTotal - inv.TotalTickets
	if diff == 0 {
		return 0, nil
	}
	if diff < 0 {
		floor := inv.SoldTickets + inv.ReservedTickets + inv.CancelledTickets
		if newTotal < floor {
			return 0, fmt.Errorf("resize to %d would undersell %d already-allocated tickets: %w", newTotal, floor, ErrInvariant)
		}
	}
	inv.TotalTickets = newTotal
	inv.AvailableTickets += diff
	return diff, nil
}

// Close terminates the inventory in response to an upstream event
// cancellation. All open (available and reserved) tickets move to the
// cancelled counter and sales stop. Calling Close on an already closed
// inventory is a no-op, which keeps the handler idempotent under
// redelivery. It returns the number of open tickets that were retired.
func (inv *Inventory) Close() int {
	if inv.Status == InventoryClosed {
		return 0
	}
	open := inv.AvailableTickets + inv.ReservedTickets
	inv.CancelledTickets += open
	inv.AvailableTickets = 0
	inv.ReservedTickets = 0
	inv.Status = InventoryClosed
	return open
}
