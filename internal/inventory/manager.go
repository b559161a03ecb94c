// Package inventory reacts to the catalog's event lifecycle messages:
// provisioning ticket pools for new events, resizing and repricing them on
// updates, and closing them out when an event is cancelled.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/eventtix/ticket-service/internal/model"
	"github.com/eventtix/ticket-service/internal/queue"
)

// saleCutoff is how long before the event start sales close.
const saleCutoff = 24 * time.Hour

// InventoryStore is the slice of the inventory repository the manager
// uses. repository.InventoryRepo satisfies it.
type InventoryStore interface {
	DB() *sql.DB
	GetByEvent(ctx context.Context, eventID string) (*model.Inventory, error)
	GetByEventForUpdateTx(ctx context.Context, tx *sql.Tx, eventID string) (*model.Inventory, error)
	CreateTx(ctx context.Context, tx *sql.Tx, inv *model.Inventory) error
	UpdateTx(ctx context.Context, tx *sql.Tx, inv *model.Inventory) error
}

// TicketStore is the slice of the ticket repository the manager uses.
type TicketStore interface {
	CreateBulkTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error
	RetireAvailableTx(ctx context.Context, tx *sql.Tx, eventID string, n int) (int, error)
	CancelOpenTx(ctx context.Context, tx *sql.Tx, eventID string) (int, error)
	ListByEventAndStatuses(ctx context.Context, eventID string, statuses ...string) ([]model.Ticket, error)
	GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Ticket, error)
	UpdateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error
	UpdatePriceForAvailableTx(ctx context.Context, tx *sql.Tx, eventID string, priceCents int64) error
}

// LedgerStore appends transaction entries.
type LedgerStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error
}

// Publisher emits outbound queue messages. queue.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, queueName string, payload any) error
}

// Manager owns inventory provisioning and close-out. It implements
// queue.EventHandler.
type Manager struct {
	inventories  InventoryStore
	tickets      TicketStore
	transactions LedgerStore
	publisher    Publisher
	logger       *logrus.Logger
}

// NewManager wires a Manager from its repositories and the queue client.
func NewManager(
	inventories InventoryStore,
	tickets TicketStore,
	transactions LedgerStore,
	publisher Publisher,
	logger *logrus.Logger,
) *Manager {
	return &Manager{
		inventories:  inventories,
		tickets:      tickets,
		transactions: transactions,
		publisher:    publisher,
		logger:       logger,
	}
}

// HandleEventCreated provisions the ticket pool for a new event: one
// inventory row plus one ticket row per seat, in a single transaction.
// Redelivery is harmless: an existing inventory for the event makes the
// message a no-op.
func (m *Manager) HandleEventCreated(ctx context.Context, msg queue.EventCreated) error {
	if msg.ID == "" {
		return fmt.Errorf("event_created without event id: %w", model.ErrInvariant)
	}
	if msg.TicketsAvailable < 0 {
		return fmt.Errorf("event %s created with negative capacity %d: %w", msg.ID, msg.TicketsAvailable, model.ErrInvariant)
	}
	if _, err := m.inventories.GetByEvent(ctx, msg.ID); err == nil {
		m.logger.WithField("event_id", msg.ID).Debug("inventory already provisioned")
		return nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return err
	}

	currency := msg.Currency
	if currency == "" {
		currency = "EUR"
	}
	now := time.Now().UTC()
	inv := &model.Inventory{
		EventID:          msg.ID,
		TotalTickets:     msg.TicketsAvailable,
		AvailableTickets: msg.TicketsAvailable,
		BasePriceCents:   model.CentsFromAmount(msg.TicketPrice),
		Currency:         currency,
		SaleStartsAt:     now,
		SaleEndsAt:       msg.StartDate.UTC().Add(-saleCutoff),
		Status:           model.InventoryActive,
	}

	tx, err := m.inventories.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := m.inventories.CreateTx(ctx, tx, inv); err != nil {
		// A concurrent redelivery can win the insert race; the unique key
		// on event_id turns that into a clean no-op.
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			m.logger.WithField("event_id", msg.ID).Debug("inventory created concurrently")
			return nil
		}
		return err
	}

	tickets := make([]model.Ticket, msg.TicketsAvailable)
	for i := range tickets {
		tickets[i] = model.Ticket{
			EventID:     msg.ID,
			InventoryID: inv.ID,
			Status:      model.TicketAvailable,
			PriceCents:  inv.BasePriceCents,
			Currency:    inv.Currency,
			Seat:        model.SeatForIndex(i),
		}
	}
	if err := m.tickets.CreateBulkTx(ctx, tx, tickets); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	m.logger.WithFields(logrus.Fields{
		"event_id": msg.ID,
		"tickets":  msg.TicketsAvailable,
	}).Info("inventory provisioned")
	return nil
}

// HandleEventUpdated applies capacity and price changes. A status of
// "cancelled" is routed to the same close-out as an explicit cancellation
// message. Shrinking below the number of already-allocated tickets is a
// permanent failure.
func (m *Manager) HandleEventUpdated(ctx context.Context, msg queue.EventUpdated) error {
	if msg.Status == "cancelled" {
		return m.closeOut(ctx, msg.ID, "", "Event has been cancelled")
	}

	tx, err := m.inventories.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	inv, err := m.inventories.GetByEventForUpdateTx(ctx, tx, msg.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// Update raced ahead of creation; requeue until the pool exists.
			return fmt.Errorf("inventory for event %s not provisioned yet: %w", msg.ID, err)
		}
		return err
	}
	if inv.Status == model.InventoryClosed {
		m.logger.WithField("event_id", msg.ID).Debug("ignoring update for closed inventory")
		return nil
	}

	oldTotal := inv.TotalTickets
	if msg.TicketsAvailable > 0 && msg.TicketsAvailable != oldTotal {
		diff, err := inv.Resize(msg.TicketsAvailable)
		if err != nil {
			return err
		}
		if diff > 0 {
			added := make([]model.Ticket, diff)
			for i := range added {
				added[i] = model.Ticket{
					EventID:     msg.ID,
					InventoryID: inv.ID,
					Status:      model.TicketAvailable,
					PriceCents:  inv.BasePriceCents,
					Currency:    inv.Currency,
					Seat:        model.SeatForIndex(oldTotal + i),
				}
			}
			if err := m.tickets.CreateBulkTx(ctx, tx, added); err != nil {
				return err
			}
		} else {
			// Retired rows stay in the table as cancelled tombstones but
			// drop out of the pool accounting entirely.
			retired, err := m.tickets.RetireAvailableTx(ctx, tx, msg.ID, -diff)
			if err != nil {
				return err
			}
			if retired != -diff {
				return fmt.Errorf("retired %d of %d tickets on event %s: %w", retired, -diff, msg.ID, model.ErrInvariant)
			}
		}
	}

	newPrice := model.CentsFromAmount(msg.TicketPrice)
	if msg.TicketPrice > 0 && newPrice != inv.BasePriceCents {
		inv.BasePriceCents = newPrice
		if err := m.tickets.UpdatePriceForAvailableTx(ctx, tx, msg.ID, newPrice); err != nil {
			return err
		}
	}
	if !msg.StartDate.IsZero() {
		inv.SaleEndsAt = msg.StartDate.UTC().Add(-saleCutoff)
	}

	if err := m.inventories.UpdateTx(ctx, tx, inv); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	m.logger.WithFields(logrus.Fields{
		"event_id": msg.ID,
		"total":    inv.TotalTickets,
		"price":    model.AmountFromCents(inv.BasePriceCents),
	}).Info("inventory updated")
	return nil
}

// HandleEventCancelled closes the event's inventory and notifies every
// ticket holder.
func (m *Manager) HandleEventCancelled(ctx context.Context, msg queue.EventCancelled) error {
	return m.closeOut(ctx, msg.ID, msg.Title, "Event has been cancelled")
}

// closeOut terminates sales for an event. The first transaction retires
// all open tickets and marks the inventory closed; holder refunds then run
// one transaction per ticket so a crash mid-way resumes where it left off
// on redelivery. The holder loop also runs when the inventory is already
// closed, which is what makes that resume work.
func (m *Manager) closeOut(ctx context.Context, eventID, title, reason string) error {
	tx, err := m.inventories.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	inv, err := m.inventories.GetByEventForUpdateTx(ctx, tx, eventID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			m.logger.WithField("event_id", eventID).Warn("cancellation for unknown event")
			return nil
		}
		return err
	}
	if open := inv.Close(); open > 0 {
		retired, err := m.tickets.CancelOpenTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if retired != open {
			return fmt.Errorf("close-out retired %d tickets, counters said %d on event %s: %w",
				retired, open, eventID, model.ErrInvariant)
		}
	}
	if err := m.inventories.UpdateTx(ctx, tx, inv); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	return m.refundHolders(ctx, inv, title, reason)
}

// refundHolders cancels each purchased or used ticket individually,
// recording a refund ledger entry and emitting queue messages per ticket.
func (m *Manager) refundHolders(ctx context.Context, inv *model.Inventory, title, reason string) error {
	holders, err := m.tickets.ListByEventAndStatuses(ctx, inv.EventID, model.TicketPurchased, model.TicketUsed)
	if err != nil {
		return err
	}
	for i := range holders {
		if err := m.refundOne(ctx, inv, &holders[i], reason); err != nil {
			return err
		}
	}
	if len(holders) > 0 {
		m.logger.WithFields(logrus.Fields{
			"event_id": inv.EventID,
			"title":    title,
			"holders":  len(holders),
		}).Info("notified ticket holders of cancellation")
	}
	return nil
}

func (m *Manager) refundOne(ctx context.Context, inv *model.Inventory, ticket *model.Ticket, reason string) error {
	tx, err := m.inventories.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	locked, err := m.tickets.GetByIDForUpdateTx(ctx, tx, ticket.ID)
	if err != nil {
		return err
	}
	prior, changed := locked.ForceCancel()
	if !changed {
		return nil // already handled on a previous delivery
	}
	if err := m.tickets.UpdateTx(ctx, tx, locked); err != nil {
		return err
	}
	userID := ""
	if locked.UserID != nil {
		userID = *locked.UserID
	}
	entry := &model.Transaction{
		TicketID:    locked.ID,
		EventID:     locked.EventID,
		UserID:      userID,
		Type:        model.TxCancellation,
		Status:      model.TxRefunded,
		AmountCents: locked.PriceCents,
		Currency:    locked.Currency,
		Metadata:    map[string]string{"reason": reason, "prior_status": prior},
	}
	if err := m.transactions.CreateTx(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	if err := m.publisher.Publish(ctx, queue.QueueTicketCancelled, queue.TicketCancelled{
		TicketID: locked.ID,
		UserID:   userID,
		EventID:  locked.EventID,
		Price:    model.AmountFromCents(locked.PriceCents),
		Currency: locked.Currency,
	}); err != nil {
		m.logger.WithError(err).WithField("ticket_id", locked.ID).Error("publish ticket_cancelled")
	}
	if err := m.publisher.Publish(ctx, queue.QueueNotification, queue.Notification{
		Type:     "event_cancelled",
		UserID:   userID,
		EventID:  locked.EventID,
		TicketID: locked.ID,
		Message:  reason + ". Your ticket has been refunded.",
	}); err != nil {
		m.logger.WithError(err).WithField("ticket_id", locked.ID).Error("publish notification_event")
	}
	return nil
}
