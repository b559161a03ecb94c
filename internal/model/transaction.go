package model

import "time"

// Transaction types recorded in the ledger.
const (
	TxReservation  = "reservation"
	TxPurchase     = "purchase"
	TxCancellation = "cancellation"
	TxRefund       = "refund"
	TxTransfer     = "transfer"
	TxValidation   = "validation"
)

// Transaction statuses.
const (
	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
	TxRefunded  = "refunded"
)

// Transaction is one append-only ledger entry recording a ticket state
// transition. Entries are never mutated after creation and exist purely
// for audit and reconciliation; current ticket state lives only on the
// Ticket row and no guard ever reads the ledger.
//
// Fields:
//  ID               – primary key identifier (UUID).
//  TicketID         – ticket the entry belongs to.
//  EventID          – event the ticket belongs to.
//  UserID           – user the entry concerns (holder, or validator for
//                     validation entries).
//  Type             – one of the Tx* type constants.
//  AmountCents      – monetary amount; zero for validations.
//  Currency         – ISO currency code.
//  Status           – one of the Tx* status constants.
//  PaymentMethod    – opaque payment method handed in at purchase.
//  PaymentReference – opaque external payment reference.
//  Metadata         – free-form context (cancellation reason, validator).
type Transaction struct {
	ID               string            `json:"id"`
	TicketID         string            `json:"ticket_id"`
	EventID          string            `json:"event_id"`
	UserID           string            `json:"user_id"`
	Type             string            `json:"type"`
	AmountCents      int64             `json:"amount_cents"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	PaymentMethod    *string           `json:"payment_method,omitempty"`
	PaymentReference *string           `json:"payment_reference,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// AmountFromCents converts an internal cent amount to the decimal amount
// used on the wire (queue payloads and HTTP responses).
func AmountFromCents(cents int64) float64 {
	return float64(cents) / 100.0
}

// CentsFromAmount converts a decimal wire amount to internal cents,
// rounding to the nearest cent.
func CentsFromAmount(amount float64) int64 {
	if amount < 0 {
		return 0
	}
	return int64(amount*100 + 0.5)
}
