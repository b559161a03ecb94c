// Package repository implements the persistence layer. Repositories expose
// `*Tx` methods that run inside a caller-owned sql.Tx so that handlers and
// the inventory manager can compose a state change, its counter updates
// and its ledger entry into one atomic unit. sql.ErrNoRows is always
// translated into model.ErrNotFound before it leaves this package.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eventtix/ticket-service/internal/model"
)

// InventoryRepo provides data access for the inventories table. One row
// exists per catalog event, enforced by a UNIQUE key on event_id.
type InventoryRepo struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewInventoryRepo returns an InventoryRepo bound to the given database.
func NewInventoryRepo(db *sql.DB, logger *logrus.Logger) *InventoryRepo {
	return &InventoryRepo{db: db, logger: logger}
}

// DB exposes the underlying handle so callers can begin transactions that
// span several repositories.
func (r *InventoryRepo) DB() *sql.DB { return r.db }

const inventoryColumns = `id, event_id, total_tickets, available_tickets, reserved_tickets,
	sold_tickets, cancelled_tickets, base_price_cents, currency,
	sale_starts_at, sale_ends_at, status, created_at, updated_at`

func scanInventory(row *sql.Row) (*model.Inventory, error) {
	var inv model.Inventory
	err := row.Scan(
		&inv.ID, &inv.EventID, &inv.TotalTickets, &inv.AvailableTickets, &inv.ReservedTickets,
		&inv.SoldTickets, &inv.CancelledTickets, &inv.BasePriceCents, &inv.Currency,
		&inv.SaleStartsAt, &inv.SaleEndsAt, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// CreateTx inserts a new inventory within the scope of an existing
// transaction, assigning a UUID when the record carries none. The caller
// must commit or roll back the transaction.
func (r *InventoryRepo) CreateTx(ctx context.Context, tx *sql.Tx, inv *model.Inventory) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	const q = `INSERT INTO inventories
		(id, event_id, total_tickets, available_tickets, reserved_tickets,
		 sold_tickets, cancelled_tickets, base_price_cents, currency,
		 sale_starts_at, sale_ends_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		inv.ID, inv.EventID, inv.TotalTickets, inv.AvailableTickets, inv.ReservedTickets,
		inv.SoldTickets, inv.CancelledTickets, inv.BasePriceCents, inv.Currency,
		inv.SaleStartsAt.UTC(), inv.SaleEndsAt.UTC(), inv.Status,
	)
	if err != nil {
		r.logger.WithError(err).WithField("event_id", inv.EventID).Error("insert inventory")
		return err
	}
	return nil
}

// GetByEvent returns the inventory for an event, or model.ErrNotFound.
func (r *InventoryRepo) GetByEvent(ctx context.Context, eventID string) (*model.Inventory, error) {
	q := `SELECT ` + inventoryColumns + ` FROM inventories WHERE event_id = ?`
	return scanInventory(r.db.QueryRowContext(ctx, q, eventID))
}

// GetByEventForUpdateTx loads the inventory row for an event and locks it
// for the remainder of the transaction. Every mutator takes this lock
// first, before touching ticket rows, so lock ordering is uniform and the
// counters can never be updated concurrently.
func (r *InventoryRepo) GetByEventForUpdateTx(ctx context.Context, tx *sql.Tx, eventID string) (*model.Inventory, error) {
	q := `SELECT ` + inventoryColumns + ` FROM inventories WHERE event_id = ? FOR UPDATE`
	return scanInventory(tx.QueryRowContext(ctx, q, eventID))
}

// GetByIDForUpdateTx is GetByEventForUpdateTx keyed on the inventory's own
// primary key; used by ticket-scoped operations that already know the
// inventory id from the ticket row.
func (r *InventoryRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Inventory, error) {
	q := `SELECT ` + inventoryColumns + ` FROM inventories WHERE id = ? FOR UPDATE`
	return scanInventory(tx.QueryRowContext(ctx, q, id))
}

// UpdateTx persists the mutable fields of a locked inventory row. It is
// only valid inside the transaction that holds the row lock.
func (r *InventoryRepo) UpdateTx(ctx context.Context, tx *sql.Tx, inv *model.Inventory) error {
	const q = `UPDATE inventories SET
		total_tickets = ?, available_tickets = ?, reserved_tickets = ?,
		sold_tickets = ?, cancelled_tickets = ?, base_price_cents = ?,
		currency = ?, sale_ends_at = ?, status = ?
		WHERE id = ?`
	_, err := tx.ExecContext(ctx, q,
		inv.TotalTickets, inv.AvailableTickets, inv.ReservedTickets,
		inv.SoldTickets, inv.CancelledTickets, inv.BasePriceCents,
		inv.Currency, inv.SaleEndsAt.UTC(), inv.Status, inv.ID,
	)
	if err != nil {
		r.logger.WithError(err).WithField("inventory_id", inv.ID).Error("update inventory")
		return err
	}
	return nil
}
