package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eventtix/ticket-service/internal/model"
)

// TicketRepo provides data access for the tickets table. Ticket rows are
// materialized eagerly when an inventory is created and are never
// deleted; termination is always a status transition.
type TicketRepo struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewTicketRepo returns a TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB, logger *logrus.Logger) *TicketRepo {
	return &TicketRepo{db: db, logger: logger}
}

const ticketColumns = `id, event_id, inventory_id, user_id, status, price_cents, currency,
	purchase_date, qr_proof, validation_code, seat_row, seat_number,
	reserved_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*model.Ticket, error) {
	var (
		t       model.Ticket
		userID  sql.NullString
		purAt   sql.NullTime
		proof   sql.NullString
		code    sql.NullString
		expires sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.EventID, &t.InventoryID, &userID, &t.Status, &t.PriceCents, &t.Currency,
		&purAt, &proof, &code, &t.Seat.Row, &t.Seat.Seat,
		&expires, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if userID.Valid {
		uid := userID.String
		t.UserID = &uid
	}
	if purAt.Valid {
		at := purAt.Time.UTC()
		t.PurchaseDate = &at
	}
	if proof.Valid {
		t.QRProof = proof.String
	}
	if code.Valid {
		t.ValidationCode = code.String
	}
	if expires.Valid {
		exp := expires.Time.UTC()
		t.ReservedExpiresAt = &exp
	}
	return &t, nil
}

// CreateBulkTx inserts multiple ticket rows in a single statement,
// assigning UUIDs to records that carry none. Passing an empty slice has
// no effect and returns nil. The caller owns the transaction.
func (r *TicketRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	query := `INSERT INTO tickets (id, event_id, inventory_id, status, price_cents, currency, seat_row, seat_number) VALUES `
	args := make([]interface{}, 0, len(tickets)*8)
	for i := range tickets {
		if tickets[i].ID == "" {
			tickets[i].ID = uuid.NewString()
		}
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			tickets[i].ID, tickets[i].EventID, tickets[i].InventoryID, tickets[i].Status,
			tickets[i].PriceCents, tickets[i].Currency, tickets[i].Seat.Row, tickets[i].Seat.Seat,
		)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithError(err).Error("bulk insert tickets")
		return err
	}
	return nil
}

// GetByID returns one ticket, or model.ErrNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`
	return scanTicket(r.db.QueryRowContext(ctx, q, id))
}

// GetByIDForUpdateTx loads one ticket and locks its row for the remainder
// of the transaction. Callers must already hold the owning inventory's
// row lock to preserve lock ordering.
func (r *TicketRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ? FOR UPDATE`
	return scanTicket(tx.QueryRowContext(ctx, q, id))
}

// PickAvailableTx selects one available ticket for the event and locks it,
// making the subsequent flip to reserved indivisible from the pick. Seat
// order keeps the allocation deterministic. Returns model.ErrNotFound when
// the pool is empty.
func (r *TicketRepo) PickAvailableTx(ctx context.Context, tx *sql.Tx, eventID string) (*model.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE event_id = ? AND status = 'available'
		ORDER BY seat_row, seat_number
		LIMIT 1
		FOR UPDATE`
	return scanTicket(tx.QueryRowContext(ctx, q, eventID))
}

// ExpireReservationsTx returns every lapsed reservation for the event to
// the available pool and reports how many were reclaimed so the caller can
// adjust the inventory counters. Runs under the inventory row lock.
func (r *TicketRepo) ExpireReservationsTx(ctx context.Context, tx *sql.Tx, eventID string, now time.Time) (int, error) {
	const q = `UPDATE tickets
		SET status = 'available', user_id = NULL, reserved_expires_at = NULL
		WHERE event_id = ? AND status = 'reserved' AND reserved_expires_at <= ?`
	res, err := tx.ExecContext(ctx, q, eventID, now.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// UpdateTx persists the mutable fields of a locked ticket row.
func (r *TicketRepo) UpdateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	const q = `UPDATE tickets SET
		user_id = ?, status = ?, price_cents = ?, purchase_date = ?,
		qr_proof = ?, validation_code = ?, reserved_expires_at = ?
		WHERE id = ?`
	var (
		userID  interface{}
		purAt   interface{}
		proof   interface{}
		code    interface{}
		expires interface{}
	)
	if t.UserID != nil {
		userID = *t.UserID
	}
	if t.PurchaseDate != nil {
		purAt = t.PurchaseDate.UTC()
	}
	if t.QRProof != "" {
		proof = t.QRProof
	}
	if t.ValidationCode != "" {
		code = t.ValidationCode
	}
	if t.ReservedExpiresAt != nil {
		expires = t.ReservedExpiresAt.UTC()
	}
	if _, err := tx.ExecContext(ctx, q, userID, t.Status, t.PriceCents, purAt, proof, code, expires, t.ID); err != nil {
		r.logger.WithError(err).WithField("ticket_id", t.ID).Error("update ticket")
		return err
	}
	return nil
}

// UpdatePriceForAvailableTx pushes a new price onto every still-available
// ticket of the event. Sold and reserved tickets keep their locked-in
// price.
func (r *TicketRepo) UpdatePriceForAvailableTx(ctx context.Context, tx *sql.Tx, eventID string, priceCents int64) error {
	const q = `UPDATE tickets SET price_cents = ? WHERE event_id = ? AND status = 'available'`
	_, err := tx.ExecContext(ctx, q, priceCents, eventID)
	return err
}

// RetireAvailableTx cancels n available tickets of the event, preferring
// the highest seat labels so the remaining pool stays contiguous. Used by
// a legal inventory shrink. Returns the number of rows actually retired.
func (r *TicketRepo) RetireAvailableTx(ctx context.Context, tx *sql.Tx, eventID string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	const q = `UPDATE tickets SET status = 'cancelled'
		WHERE event_id = ? AND status = 'available'
		ORDER BY seat_row DESC, seat_number DESC
		LIMIT ?`
	res, err := tx.ExecContext(ctx, q, eventID, n)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// CancelOpenTx transitions every available and reserved ticket of the
// event to cancelled in one statement. Purchased and used tickets are
// handled individually by the close-out loop for per-ticket durability.
func (r *TicketRepo) CancelOpenTx(ctx context.Context, tx *sql.Tx, eventID string) (int, error) {
	const q = `UPDATE tickets SET status = 'cancelled', reserved_expires_at = NULL
		WHERE event_id = ? AND status IN ('available', 'reserved')`
	res, err := tx.ExecContext(ctx, q, eventID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListByEventAndStatuses returns all tickets of an event in any of the
// given statuses, ordered by seat. Used by the close-out loop to find
// tickets that still need a refund ledger entry and notification.
func (r *TicketRepo) ListByEventAndStatuses(ctx context.Context, eventID string, statuses ...string) ([]model.Ticket, error) {
	if len(statuses) == 0 {
		return []model.Ticket{}, nil
	}
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_id = ? AND status IN (`
	args := make([]interface{}, 0, len(statuses)+1)
	args = append(args, eventID)
	for i, s := range statuses {
		if i > 0 {
			q += ","
		}
		q += "?"
		args = append(args, s)
	}
	q += `) ORDER BY seat_row, seat_number`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets := make([]model.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

// ListByUser returns the user's purchased, used and cancelled tickets,
// newest purchase first. Tickets still in reserved are excluded, matching
// the user-facing "my tickets" listing.
func (r *TicketRepo) ListByUser(ctx context.Context, userID string) ([]model.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE user_id = ? AND status IN ('purchased', 'used', 'cancelled')
		ORDER BY purchase_date DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets := make([]model.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

// ListByEvent returns one page of an event's tickets, optionally filtered
// by status, together with the total count for pagination.
func (r *TicketRepo) ListByEvent(ctx context.Context, eventID, status string, limit, offset int) ([]model.Ticket, int, error) {
	countQ := `SELECT COUNT(*) FROM tickets WHERE event_id = ?`
	listQ := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_id = ?`
	countArgs := []interface{}{eventID}
	listArgs := []interface{}{eventID}
	if status != "" {
		countQ += ` AND status = ?`
		listQ += ` AND status = ?`
		countArgs = append(countArgs, status)
		listArgs = append(listArgs, status)
	}
	listQ += ` ORDER BY created_at DESC, seat_row, seat_number LIMIT ? OFFSET ?`
	listArgs = append(listArgs, limit, offset)

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, listQ, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tickets := make([]model.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}
