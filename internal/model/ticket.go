package model

import (
	"fmt"
	"time"
)

// Ticket statuses. Transitions are one-way: available → reserved →
// purchased → used, with reserved and purchased additionally able to move
// to cancelled. There is no path back to available once a ticket has left
// the pool; a cancelled ticket is never recycled.
const (
	TicketAvailable = "available"
	TicketReserved  = "reserved"
	TicketPurchased = "purchased"
	TicketCancelled = "cancelled"
	TicketUsed      = "used"
)

// SeatInfo is the deterministic seat label assigned when a ticket row is
// materialized: ticket i sits in row i/10+1, seat i%10+1.
type SeatInfo struct {
	Row  int `json:"row"`
	Seat int `json:"seat"`
}

// SeatForIndex returns the seat label for the i-th ticket of an inventory
// (zero-based). The mapping is stable so that re-running inventory
// creation never shuffles seats.
func SeatForIndex(i int) SeatInfo {
	return SeatInfo{Row: i/10 + 1, Seat: i%10 + 1}
}

// Ticket is one sellable unit tied to exactly one inventory.
//
// Fields:
//  ID                – primary key identifier (UUID).
//  EventID           – catalog event the ticket admits to.
//  InventoryID       – owning inventory.
//  UserID            – holder; nil until reserved.
//  Status            – one of the Ticket* constants above.
//  PriceCents        – price locked in at reservation time.
//  Currency          – ISO currency code.
//  PurchaseDate      – set at the reserved → purchased transition.
//  QRProof           – redemption proof, present only once purchased.
//  ValidationCode    – secret matched at the gate; never derived from
//                      public fields.
//  Seat              – deterministic seat label.
//  ReservedExpiresAt – when an unconsumed reservation lapses.
type Ticket struct {
	ID                string     `json:"id"`
	EventID           string     `json:"event_id"`
	InventoryID       string     `json:"inventory_id"`
	UserID            *string    `json:"user_id,omitempty"`
	Status            string     `json:"status"`
	PriceCents        int64      `json:"price_cents"`
	Currency          string     `json:"currency"`
	PurchaseDate      *time.Time `json:"purchase_date,omitempty"`
	QRProof           string     `json:"qr_proof,omitempty"`
	ValidationCode    string     `json:"-"`
	Seat              SeatInfo   `json:"seat"`
	ReservedExpiresAt *time.Time `json:"reserved_expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// OwnedBy reports whether the ticket is currently held by the given user.
func (t *Ticket) OwnedBy(userID string) bool {
	return t.UserID != nil && *t.UserID == userID
}

// ReservationLapsed reports whether a reserved ticket's hold has expired
// at the given instant. Tickets in any other status never lapse.
func (t *Ticket) ReservationLapsed(now time.Time) bool {
	return t.Status == TicketReserved && t.ReservedExpiresAt != nil && !t.ReservedExpiresAt.After(now)
}

// Reserve transitions available → reserved, stamping the holder and the
// expiry of the hold.
func (t *Ticket) Reserve(userID string, expiresAt time.Time) error {
	if t.Status != TicketAvailable {
		return fmt.Errorf("ticket %s is %s, not available: %w", t.ID, t.Status, ErrConflict)
	}
	t.Status = TicketReserved
	t.UserID = &userID
	exp := expiresAt.UTC()
	t.ReservedExpiresAt = &exp
	return nil
}

// Purchase transitions reserved → purchased. The acting user must be the
// ticket's holder and the reservation must not have lapsed. The QR proof
// and validation code are stamped here; they do not exist before purchase.
func (t *Ticket) Purchase(userID string, now time.Time, qrProof, validationCode string) error {
	if t.Status != TicketReserved || !t.OwnedBy(userID) {
		return fmt.Errorf("ticket %s is not reserved by user %s: %w", t.ID, userID, ErrConflict)
	}
	if t.ReservationLapsed(now) {
		return fmt.Errorf("reservation on ticket %s lapsed at %s: %w", t.ID, t.ReservedExpiresAt.Format(time.RFC3339), ErrConflict)
	}
	t.Status = TicketPurchased
	at := now.UTC()
	t.PurchaseDate = &at
	t.QRProof = qrProof
	t.ValidationCode = validationCode
	t.ReservedExpiresAt = nil
	return nil
}

// Cancel transitions reserved or purchased → cancelled. The acting user
// must be the holder or an administrator. It returns the prior status so
// the caller can adjust the matching inventory counter.
func (t *Ticket) Cancel(actorID string, admin bool) (prior string, err error) {
	if !admin && !t.OwnedBy(actorID) {
		return "", fmt.Errorf("ticket %s is not held by user %s: %w", t.ID, actorID, ErrForbidden)
	}
	if t.Status != TicketReserved && t.Status != TicketPurchased {
		return "", fmt.Errorf("ticket %s cannot be cancelled from %s: %w", t.ID, t.Status, ErrConflict)
	}
	prior = t.Status
	t.Status = TicketCancelled
	return prior, nil
}

// MarkUsed transitions purchased → used after the redemption proof has
// been verified. Inventory counters do not change: redemption does not
// affect the sold count.
func (t *Ticket) MarkUsed() error {
	if t.Status != TicketPurchased {
		return fmt.Errorf("ticket %s cannot be validated from %s: %w", t.ID, t.Status, ErrConflict)
	}
	t.Status = TicketUsed
	return nil
}

// ForceCancel transitions any open ticket to cancelled regardless of
// ownership. It is used by the inventory close-out when the upstream event
// is cancelled; already cancelled tickets are left untouched.
func (t *Ticket) ForceCancel() (prior string, changed bool) {
	switch t.Status {
	case TicketAvailable, TicketReserved, TicketPurchased, TicketUsed:
		prior = t.Status
		t.Status = TicketCancelled
		return prior, true
	default:
		return t.Status, false
	}
}
