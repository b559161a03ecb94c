package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eventtix/ticket-service/internal/model"
)

// TransactionRepo records the append-only financial ledger. Entries are
// written inside the same transaction that flips the corresponding ticket
// so they can never disagree with ticket state.
type TransactionRepo struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewTransactionRepo returns a TransactionRepo bound to the given database.
func NewTransactionRepo(db *sql.DB, logger *logrus.Logger) *TransactionRepo {
	return &TransactionRepo{db: db, logger: logger}
}

// CreateTx appends one ledger entry. Assigns a UUID when the entry has no
// ID. Metadata is stored as a JSON document; a nil map is stored as NULL.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var metadata interface{}
	if len(t.Metadata) > 0 {
		raw, err := json.Marshal(t.Metadata)
		if err != nil {
			return err
		}
		metadata = raw
	}
	var payMethod, payRef interface{}
	if t.PaymentMethod != nil {
		payMethod = *t.PaymentMethod
	}
	if t.PaymentReference != nil {
		payRef = *t.PaymentReference
	}
	const q = `INSERT INTO transactions
		(id, ticket_id, event_id, user_id, type, status, amount_cents, currency, payment_method, payment_reference, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		t.ID, t.TicketID, t.EventID, t.UserID, t.Type, t.Status,
		t.AmountCents, t.Currency, payMethod, payRef, metadata,
	)
	if err != nil {
		r.logger.WithError(err).WithField("ticket_id", t.TicketID).Error("insert transaction")
		return err
	}
	return nil
}

// ListByTicket returns a ticket's ledger entries, oldest first.
func (r *TransactionRepo) ListByTicket(ctx context.Context, ticketID string) ([]model.Transaction, error) {
	const q = `SELECT id, ticket_id, event_id, user_id, type, status, amount_cents, currency,
		payment_method, payment_reference, metadata, created_at
		FROM transactions WHERE ticket_id = ? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]model.Transaction, 0)
	for rows.Next() {
		var (
			t         model.Transaction
			payMethod sql.NullString
			payRef    sql.NullString
			metadata  []byte
		)
		err := rows.Scan(&t.ID, &t.TicketID, &t.EventID, &t.UserID, &t.Type, &t.Status,
			&t.AmountCents, &t.Currency, &payMethod, &payRef, &metadata, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		if payMethod.Valid {
			m := payMethod.String
			t.PaymentMethod = &m
		}
		if payRef.Valid {
			ref := payRef.String
			t.PaymentReference = &ref
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, err
			}
		}
		entries = append(entries, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
