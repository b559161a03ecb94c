package inventory

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventtix/ticket-service/internal/model"
	"github.com/eventtix/ticket-service/internal/queue"
)

// The fakes below ignore the *sql.Tx entirely, so the driver behind the
// test *sql.DB only needs to hand out transactions that commit and roll
// back without error.
type nopDriver struct{}

func (nopDriver) Open(string) (driver.Conn, error) { return nopConn{}, nil }

type nopConn struct{}

func (nopConn) Prepare(string) (driver.Stmt, error) { return nil, io.EOF }
func (nopConn) Close() error                        { return nil }
func (nopConn) Begin() (driver.Tx, error)           { return nopTx{}, nil }

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

func init() { sql.Register("inventorytest", nopDriver{}) }

type fakeInventories struct {
	db        *sql.DB
	byEvent   map[string]*model.Inventory
	createErr error
	created   []*model.Inventory
	updated   []model.Inventory
}

func (f *fakeInventories) DB() *sql.DB { return f.db }

func (f *fakeInventories) GetByEvent(_ context.Context, eventID string) (*model.Inventory, error) {
	inv, ok := f.byEvent[eventID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return inv, nil
}

func (f *fakeInventories) GetByEventForUpdateTx(ctx context.Context, _ *sql.Tx, eventID string) (*model.Inventory, error) {
	return f.GetByEvent(ctx, eventID)
}

func (f *fakeInventories) CreateTx(_ context.Context, _ *sql.Tx, inv *model.Inventory) error {
	if f.createErr != nil {
		return f.createErr
	}
	inv.ID = "inv-" + inv.EventID
	f.created = append(f.created, inv)
	return nil
}

func (f *fakeInventories) UpdateTx(_ context.Context, _ *sql.Tx, inv *model.Inventory) error {
	f.updated = append(f.updated, *inv)
	return nil
}

type fakeTickets struct {
	bulks     [][]model.Ticket
	retires   []int
	openCount int
	holders   []model.Ticket
	byID      map[string]*model.Ticket
	updates   []model.Ticket
	reprices  []int64
}

func (f *fakeTickets) CreateBulkTx(_ context.Context, _ *sql.Tx, tickets []model.Ticket) error {
	f.bulks = append(f.bulks, tickets)
	return nil
}

func (f *fakeTickets) RetireAvailableTx(_ context.Context, _ *sql.Tx, _ string, n int) (int, error) {
	f.retires = append(f.retires, n)
	return n, nil
}

func (f *fakeTickets) CancelOpenTx(_ context.Context, _ *sql.Tx, _ string) (int, error) {
	return f.openCount, nil
}

func (f *fakeTickets) ListByEventAndStatuses(_ context.Context, _ string, _ ...string) ([]model.Ticket, error) {
	return f.holders, nil
}

func (f *fakeTickets) GetByIDForUpdateTx(_ context.Context, _ *sql.Tx, id string) (*model.Ticket, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) UpdateTx(_ context.Context, _ *sql.Tx, t *model.Ticket) error {
	f.updates = append(f.updates, *t)
	return nil
}

func (f *fakeTickets) UpdatePriceForAvailableTx(_ context.Context, _ *sql.Tx, _ string, priceCents int64) error {
	f.reprices = append(f.reprices, priceCents)
	return nil
}

type fakeLedger struct {
	entries []model.Transaction
}

func (f *fakeLedger) CreateTx(_ context.Context, _ *sql.Tx, t *model.Transaction) error {
	f.entries = append(f.entries, *t)
	return nil
}

type publishedMessage struct {
	queue   string
	payload any
}

type fakePublisher struct {
	messages []publishedMessage
}

func (f *fakePublisher) Publish(_ context.Context, queueName string, payload any) error {
	f.messages = append(f.messages, publishedMessage{queue: queueName, payload: payload})
	return nil
}

type managerFixture struct {
	inventories *fakeInventories
	tickets     *fakeTickets
	ledger      *fakeLedger
	publisher   *fakePublisher
	manager     *Manager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	db, err := sql.Open("inventorytest", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &managerFixture{
		inventories: &fakeInventories{db: db, byEvent: map[string]*model.Inventory{}},
		tickets:     &fakeTickets{byID: map[string]*model.Ticket{}},
		ledger:      &fakeLedger{},
		publisher:   &fakePublisher{},
	}
	f.manager = NewManager(f.inventories, f.tickets, f.ledger, f.publisher, logger)
	return f
}

func strptr(s string) *string { return &s }

func TestHandleEventCreatedProvisionsPool(t *testing.T) {
	f := newManagerFixture(t)
	start := time.Date(2026, 10, 1, 19, 0, 0, 0, time.UTC)

	err := f.manager.HandleEventCreated(context.Background(), queue.EventCreated{
		ID:               "ev-1",
		TicketsAvailable: 23,
		TicketPrice:      12.5,
		Currency:         "USD",
		StartDate:        start,
	})
	require.NoError(t, err)

	require.Len(t, f.inventories.created, 1)
	inv := f.inventories.created[0]
	assert.Equal(t, 23, inv.TotalTickets)
	assert.Equal(t, 23, inv.AvailableTickets)
	assert.Equal(t, int64(1250), inv.BasePriceCents)
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, model.InventoryActive, inv.Status)
	assert.True(t, inv.SaleEndsAt.Equal(start.Add(-24*time.Hour)), "sales should close one day before the event")

	require.Len(t, f.tickets.bulks, 1)
	seats := f.tickets.bulks[0]
	require.Len(t, seats, 23)
	assert.Equal(t, model.SeatInfo{Row: 1, Seat: 1}, seats[0].Seat)
	assert.Equal(t, model.SeatInfo{Row: 2, Seat: 1}, seats[10].Seat)
	assert.Equal(t, model.SeatInfo{Row: 3, Seat: 3}, seats[22].Seat)
	for _, tk := range seats {
		assert.Equal(t, model.TicketAvailable, tk.Status)
		assert.Equal(t, int64(1250), tk.PriceCents)
		assert.Equal(t, inv.ID, tk.InventoryID)
	}
}

func TestHandleEventCreatedRedeliveryIsNoOp(t *testing.T) {
	f := newManagerFixture(t)
	f.inventories.byEvent["ev-1"] = &model.Inventory{ID: "inv-ev-1", EventID: "ev-1"}

	err := f.manager.HandleEventCreated(context.Background(), queue.EventCreated{
		ID:               "ev-1",
		TicketsAvailable: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, f.inventories.created)
	assert.Empty(t, f.tickets.bulks)
}

func TestHandleEventCreatedLostInsertRace(t *testing.T) {
	f := newManagerFixture(t)
	f.inventories.createErr = &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ev-1' for key 'uq_inventories_event'"}

	err := f.manager.HandleEventCreated(context.Background(), queue.EventCreated{
		ID:               "ev-1",
		TicketsAvailable: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, f.tickets.bulks, "losing the insert race must not create tickets")
}

func TestHandleEventCreatedRejectsBadPayload(t *testing.T) {
	f := newManagerFixture(t)

	err := f.manager.HandleEventCreated(context.Background(), queue.EventCreated{TicketsAvailable: 10})
	assert.ErrorIs(t, err, model.ErrInvariant)

	err = f.manager.HandleEventCreated(context.Background(), queue.EventCreated{ID: "ev-1", TicketsAvailable: -1})
	assert.ErrorIs(t, err, model.ErrInvariant)
}

func TestHandleEventUpdatedGrowsPool(t *testing.T) {
	f := newManagerFixture(t)
	f.inventories.byEvent["ev-1"] = &model.Inventory{
		ID: "inv-1", EventID: "ev-1",
		TotalTickets: 10, AvailableTickets: 10,
		BasePriceCents: 1000, Currency: "EUR",
		Status: model.InventoryActive,
	}

	err := f.manager.HandleEventUpdated(context.Background(), queue.EventUpdated{
		ID:               "ev-1",
		TicketsAvailable: 15,
		TicketPrice:      20,
	})
	require.NoError(t, err)

	require.Len(t, f.tickets.bulks, 1)
	added := f.tickets.bulks[0]
	require.Len(t, added, 5)
	assert.Equal(t, model.SeatInfo{Row: 2, Seat: 1}, added[0].Seat, "new seats continue after the existing block")

	require.Len(t, f.inventories.updated, 1)
	assert.Equal(t, 15, f.inventories.updated[0].TotalTickets)
	assert.Equal(t, 15, f.inventories.updated[0].AvailableTickets)
	assert.Equal(t, int64(2000), f.inventories.updated[0].BasePriceCents)
	assert.Equal(t, []int64{2000}, f.tickets.reprices)
}

func TestHandleEventUpdatedShrinkRetiresAvailable(t *testing.T) {
	f := newManagerFixture(t)
	f.inventories.byEvent["ev-1"] = &model.Inventory{
		ID: "inv-1", EventID: "ev-1",
		TotalTickets: 10, AvailableTickets: 6, SoldTickets: 4,
		BasePriceCents: 1000, Currency: "EUR",
		Status: model.InventoryActive,
	}

	err := f.manager.HandleEventUpdated(context.Background(), queue.EventUpdated{
		ID:               "ev-1",
		TicketsAvailable: 7,
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3}, f.tickets.retires)
	require.Len(t, f.inventories.updated, 1)
	assert.Equal(t, 7, f.inventories.updated[0].TotalTickets)
	assert.Equal(t, 3, f.inventories.updated[0].AvailableTickets)
}

func TestHandleEventUpdatedShrinkBelowAllocatedRejected(t *testing.T) {
	f := newManagerFixture(t)
	inv := &model.Inventory{
		ID: "inv-1", EventID: "ev-1",
		TotalTickets: 10, AvailableTickets: 3, ReservedTickets: 3, SoldTickets: 4,
		Status: model.InventoryActive,
	}
	f.inventories.byEvent["ev-1"] = inv

	err := f.manager.HandleEventUpdated(context.Background(), queue.EventUpdated{
		ID:               "ev-1",
		TicketsAvailable: 5,
	})
	require.ErrorIs(t, err, model.ErrInvariant)

	assert.Empty(t, f.tickets.retires)
	assert.Empty(t, f.inventories.updated)
	assert.Equal(t, 10, inv.TotalTickets, "rejected resize must leave counters untouched")
}

func TestHandleEventUpdatedBeforeCreationRequeues(t *testing.T) {
	f := newManagerFixture(t)

	err := f.manager.HandleEventUpdated(context.Background(), queue.EventUpdated{
		ID:               "ev-1",
		TicketsAvailable: 10,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NotErrorIs(t, err, model.ErrInvariant, "an early update is transient, not a poison message")
}

func TestHandleEventUpdatedIgnoresClosedInventory(t *testing.T) {
	f := newManagerFixture(t)
	f.inventories.byEvent["ev-1"] = &model.Inventory{
		ID: "inv-1", EventID: "ev-1",
		TotalTickets: 10, CancelledTickets: 10,
		Status: model.InventoryClosed,
	}

	err := f.manager.HandleEventUpdated(context.Background(), queue.EventUpdated{
		ID:               "ev-1",
		TicketsAvailable: 20,
	})
	require.NoError(t, err)
	assert.Empty(t, f.inventories.updated)
	assert.Empty(t, f.tickets.bulks)
}

func TestHandleEventCancelledClosesOutAndRefunds(t *testing.T) {
	f := newManagerFixture(t)
	f.inventories.byEvent["ev-1"] = &model.Inventory{
		ID: "inv-1", EventID: "ev-1",
		TotalTickets: 5, AvailableTickets: 1, ReservedTickets: 1, SoldTickets: 2, CancelledTickets: 1,
		Status: model.InventoryActive,
	}
	f.tickets.openCount = 2
	purchased := model.Ticket{ID: "t-p", EventID: "ev-1", UserID: strptr("u1"), Status: model.TicketPurchased, PriceCents: 1500, Currency: "EUR"}
	used := model.Ticket{ID: "t-u", EventID: "ev-1", UserID: strptr("u2"), Status: model.TicketUsed, PriceCents: 1500, Currency: "EUR"}
	f.tickets.holders = []model.Ticket{purchased, used}
	f.tickets.byID["t-p"] = &purchased
	f.tickets.byID["t-u"] = &used

	err := f.manager.HandleEventCancelled(context.Background(), queue.EventCancelled{ID: "ev-1", Title: "Gala"})
	require.NoError(t, err)

	require.Len(t, f.inventories.updated, 1)
	closed := f.inventories.updated[0]
	assert.Equal(t, model.InventoryClosed, closed.Status)
	assert.Equal(t, 0, closed.AvailableTickets)
	assert.Equal(t, 0, closed.ReservedTickets)
	assert.Equal(t, 3, closed.CancelledTickets)
	assert.True(t, closed.Balanced())

	require.Len(t, f.tickets.updates, 2)
	for _, tk := range f.tickets.updates {
		assert.Equal(t, model.TicketCancelled, tk.Status)
	}

	require.Len(t, f.ledger.entries, 2)
	assert.Equal(t, model.TxCancellation, f.ledger.entries[0].Type)
	assert.Equal(t, model.TxRefunded, f.ledger.entries[0].Status)
	assert.Equal(t, int64(1500), f.ledger.entries[0].AmountCents)
	assert.Equal(t, "purchased", f.ledger.entries[0].Metadata["prior_status"])
	assert.Equal(t, "used", f.ledger.entries[1].Metadata["prior_status"])

	require.Len(t, f.publisher.messages, 4)
	assert.Equal(t, queue.QueueTicketCancelled, f.publisher.messages[0].queue)
	assert.Equal(t, queue.QueueNotification, f.publisher.messages[1].queue)
	note, ok := f.publisher.messages[1].payload.(queue.Notification)
	require.True(t, ok)
	assert.Equal(t, "u1", note.UserID)
	assert.Contains(t, note.Message, "refunded")
}

func TestHandleEventCancelledUnknownEvent(t *testing.T) {
	f := newManagerFixture(t)

	err := f.manager.HandleEventCancelled(context.Background(), queue.EventCancelled{ID: "ev-missing"})
	require.NoError(t, err)
	assert.Empty(t, f.inventories.updated)
	assert.Empty(t, f.publisher.messages)
}

func TestHandleEventCancelledResumeSkipsRefunded(t *testing.T) {
	f := newManagerFixture(t)
	f.inventories.byEvent["ev-1"] = &model.Inventory{
		ID: "inv-1", EventID: "ev-1",
		TotalTickets: 2, SoldTickets: 0, CancelledTickets: 2,
		Status: model.InventoryClosed,
	}
	// The holder list still reports both tickets, but the first was already
	// refunded before the crash: its row lock reveals the cancelled status.
	f.tickets.holders = []model.Ticket{
		{ID: "t-1", EventID: "ev-1", UserID: strptr("u1"), Status: model.TicketPurchased, PriceCents: 900, Currency: "EUR"},
		{ID: "t-2", EventID: "ev-1", UserID: strptr("u2"), Status: model.TicketPurchased, PriceCents: 900, Currency: "EUR"},
	}
	f.tickets.byID["t-1"] = &model.Ticket{ID: "t-1", EventID: "ev-1", UserID: strptr("u1"), Status: model.TicketCancelled, PriceCents: 900, Currency: "EUR"}
	f.tickets.byID["t-2"] = &model.Ticket{ID: "t-2", EventID: "ev-1", UserID: strptr("u2"), Status: model.TicketPurchased, PriceCents: 900, Currency: "EUR"}

	err := f.manager.HandleEventCancelled(context.Background(), queue.EventCancelled{ID: "ev-1"})
	require.NoError(t, err)

	require.Len(t, f.ledger.entries, 1)
	assert.Equal(t, "t-2", f.ledger.entries[0].TicketID)
	require.Len(t, f.tickets.updates, 1)
	assert.Equal(t, "t-2", f.tickets.updates[0].ID)
	assert.Len(t, f.publisher.messages, 2)
}
