// Package handler contains the HTTP handlers. Each mutating handler runs
// its critical section inside a single database transaction, locking the
// inventory row before any ticket row so concurrent operations on the same
// event serialize in a fixed order. Queue messages are published only
// after the transaction commits; the database is the source of truth.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/eventtix/ticket-service/internal/catalog"
	"github.com/eventtix/ticket-service/internal/model"
	"github.com/eventtix/ticket-service/internal/monitoring"
	"github.com/eventtix/ticket-service/internal/qr"
	"github.com/eventtix/ticket-service/internal/queue"
	"github.com/eventtix/ticket-service/internal/repository"
)

// TicketHandler serves the ticket lifecycle endpoints. All methods assume
// JWTAuth ran first and read the acting user from the request context.
type TicketHandler struct {
	Inventories  *repository.InventoryRepo
	Tickets      *repository.TicketRepo
	Transactions *repository.TransactionRepo
	Catalog      *catalog.Client
	Publisher    *queue.Client
	Logger       *logrus.Logger

	ReservationTTL time.Duration
	ListLimit      int
}

// NewTicketHandler constructs a TicketHandler. All dependencies except the
// catalog client must be non-nil.
func NewTicketHandler(
	inventories *repository.InventoryRepo,
	tickets *repository.TicketRepo,
	transactions *repository.TransactionRepo,
	cat *catalog.Client,
	publisher *queue.Client,
	logger *logrus.Logger,
	reservationTTL time.Duration,
	listLimit int,
) *TicketHandler {
	if inventories == nil || tickets == nil || transactions == nil || publisher == nil {
		panic("nil dependency passed to NewTicketHandler")
	}
	return &TicketHandler{
		Inventories:    inventories,
		Tickets:        tickets,
		Transactions:   transactions,
		Catalog:        cat,
		Publisher:      publisher,
		Logger:         logger,
		ReservationTTL: reservationTTL,
		ListLimit:      listLimit,
	}
}

func currentUser(c echo.Context) (userID, role, token string) {
	userID, _ = c.Get("user_id").(string)
	role, _ = c.Get("role").(string)
	token, _ = c.Get("token").(string)
	return userID, role, token
}

func isStaff(role string) bool {
	return role == "admin" || role == "organizer"
}

// respondError maps the model sentinel wrapped in err to an HTTP status
// with a stable reason string. Unrecognized errors become 500 without
// leaking internals.
func (h *TicketHandler) respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	case errors.Is(err, model.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.Is(err, model.ErrEventUnavailable):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event is not available for ticket purchase"})
	case errors.Is(err, model.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, model.ErrInvalidProof):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid redemption proof"})
	case errors.Is(err, model.ErrInvariant):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	case errors.Is(err, model.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrUpstream):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "event service unavailable"})
	default:
		h.Logger.WithError(err).Error("unhandled error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// ticketResponse is the wire form of a ticket. The QR proof is included
// only while the ticket is purchased; once redeemed or cancelled the proof
// is withheld.
func ticketResponse(t *model.Ticket) echo.Map {
	resp := echo.Map{
		"id":       t.ID,
		"eventId":  t.EventID,
		"status":   t.Status,
		"price":    model.AmountFromCents(t.PriceCents),
		"currency": t.Currency,
		"seat":     t.Seat,
	}
	if t.UserID != nil {
		resp["userId"] = *t.UserID
	}
	if t.PurchaseDate != nil {
		resp["purchaseDate"] = t.PurchaseDate.Format(time.RFC3339)
	}
	if t.Status == model.TicketPurchased && t.QRProof != "" {
		resp["qrCode"] = t.QRProof
	}
	if t.ReservedExpiresAt != nil {
		resp["expiresAt"] = t.ReservedExpiresAt.Format(time.RFC3339)
	}
	return resp
}

// Reserve handles POST /api/events/:eventId/tickets/reserve. It holds one
// ticket for the authenticated user for the reservation window. The seat
// pick, the hold and the counter updates commit atomically; the catalog
// check runs before the transaction so a slow catalog never holds locks.
func (h *TicketHandler) Reserve(c echo.Context) error {
	userID, _, token := currentUser(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID := c.Param("eventId")
	if eventID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx := c.Request().Context()

	if h.Catalog != nil {
		ev, err := h.Catalog.GetEvent(ctx, eventID, token)
		if err != nil {
			monitoring.TrackOperation("reserve", "catalog_error")
			return h.respondError(c, err)
		}
		if ev.Status != "published" {
			monitoring.TrackOperation("reserve", "event_unavailable")
			return h.respondError(c, model.ErrEventUnavailable)
		}
	}

	started := time.Now()
	tx, err := h.Inventories.DB().BeginTx(ctx, nil)
	if err != nil {
		return h.respondError(c, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	inv, err := h.Inventories.GetByEventForUpdateTx(ctx, tx, eventID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			monitoring.TrackOperation("reserve", "no_inventory")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no tickets registered for this event"})
		}
		return h.respondError(c, err)
	}
	now := time.Now().UTC()
	if now.After(inv.SaleEndsAt) || now.Before(inv.SaleStartsAt) {
		monitoring.TrackOperation("reserve", "sale_closed")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket sales are closed for this event"})
	}

	// Lapsed holds are reclaimed here, inside the same transaction that
	// picks a seat, so expiry needs no background job.
	reclaimed, err := h.Tickets.ExpireReservationsTx(ctx, tx, eventID, now)
	if err != nil {
		return h.respondError(c, err)
	}
	if reclaimed > 0 {
		if err := inv.Release(reclaimed); err != nil {
			return h.respondError(c, err)
		}
	}

	if err := inv.Reserve(); err != nil {
		monitoring.TrackOperation("reserve", "sold_out")
		return h.respondError(c, err)
	}
	ticket, err := h.Tickets.PickAvailableTx(ctx, tx, eventID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// Counters said available but no row qualified. Should not
			// happen while the conservation invariant holds.
			h.Logger.WithField("event_id", eventID).Error("inventory counters disagree with ticket rows")
			return c.JSON(http.StatusConflict, echo.Map{"error": "no tickets available"})
		}
		return h.respondError(c, err)
	}
	expiresAt := now.Add(h.ReservationTTL)
	if err := ticket.Reserve(userID, expiresAt); err != nil {
		return h.respondError(c, err)
	}
	if err := h.Tickets.UpdateTx(ctx, tx, ticket); err != nil {
		return h.respondError(c, err)
	}
	if err := h.Inventories.UpdateTx(ctx, tx, inv); err != nil {
		return h.respondError(c, err)
	}
	if err := h.Transactions.CreateTx(ctx, tx, &model.Transaction{
		TicketID:    ticket.ID,
		EventID:     eventID,
		UserID:      userID,
		Type:        model.TxReservation,
		Status:      model.TxPending,
		AmountCents: ticket.PriceCents,
		Currency:    ticket.Currency,
	}); err != nil {
		return h.respondError(c, err)
	}
	if err := tx.Commit(); err != nil {
		return h.respondError(c, err)
	}
	committed = true

	monitoring.TrackOperation("reserve", "ok")
	monitoring.TrackReservation(time.Since(started))

	if err := h.Publisher.Publish(ctx, queue.QueueTicketReserved, queue.TicketReserved{
		TicketID:  ticket.ID,
		UserID:    userID,
		EventID:   eventID,
		Price:     model.AmountFromCents(ticket.PriceCents),
		Currency:  ticket.Currency,
		ExpiresAt: expiresAt,
	}); err != nil {
		h.Logger.WithError(err).WithField("ticket_id", ticket.ID).Error("publish ticket_reserved")
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Ticket reserved successfully",
		"ticket":  ticketResponse(ticket),
	})
}

// Purchase handles POST /api/tickets/:ticketId/purchase. It converts the
// caller's reservation into a purchase, locking in the price and issuing
// the redemption proof. A lapsed reservation is released back to the pool
// in the same transaction and reported as a conflict.
func (h *TicketHandler) Purchase(c echo.Context) error {
	userID, _, _ := currentUser(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticketID := c.Param("ticketId")

	var body struct {
		PaymentMethod    string `json:"paymentMethod"`
		PaymentReference string `json:"paymentReference"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.PaymentMethod == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "paymentMethod is required"})
	}
	ctx := c.Request().Context()

	// Unlocked pre-read to learn the owning inventory, then lock rows in
	// the fixed order: inventory first, ticket second.
	peek, err := h.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		monitoring.TrackOperation("purchase", "not_found")
		return h.respondError(c, err)
	}

	tx, err := h.Inventories.DB().BeginTx(ctx, nil)
	if err != nil {
		return h.respondError(c, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	inv, err := h.Inventories.GetByIDForUpdateTx(ctx, tx, peek.InventoryID)
	if err != nil {
		return h.respondError(c, err)
	}
	ticket, err := h.Tickets.GetByIDForUpdateTx(ctx, tx, ticketID)
	if err != nil {
		return h.respondError(c, err)
	}

	now := time.Now().UTC()
	if ticket.ReservationLapsed(now) {
		ticket.Status = model.TicketAvailable
		ticket.UserID = nil
		ticket.ReservedExpiresAt = nil
		if err := h.Tickets.UpdateTx(ctx, tx, ticket); err != nil {
			return h.respondError(c, err)
		}
		if err := inv.Release(1); err != nil {
			return h.respondError(c, err)
		}
		if err := h.Inventories.UpdateTx(ctx, tx, inv); err != nil {
			return h.respondError(c, err)
		}
		if err := tx.Commit(); err != nil {
			return h.respondError(c, err)
		}
		committed = true
		monitoring.TrackOperation("purchase", "reservation_lapsed")
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation has expired"})
	}

	proof, code, err := qr.Issue(ticket.ID, ticket.EventID, userID, now)
	if err != nil {
		return h.respondError(c, err)
	}
	if err := ticket.Purchase(userID, now, proof, code); err != nil {
		monitoring.TrackOperation("purchase", "conflict")
		return h.respondError(c, err)
	}
	if err := inv.ConfirmPurchase(); err != nil {
		return h.respondError(c, err)
	}
	if err := h.Tickets.UpdateTx(ctx, tx, ticket); err != nil {
		return h.respondError(c, err)
	}
	if err := h.Inventories.UpdateTx(ctx, tx, inv); err != nil {
		return h.respondError(c, err)
	}
	entry := &model.Transaction{
		TicketID:    ticket.ID,
		EventID:     ticket.EventID,
		UserID:      userID,
		Type:        model.TxPurchase,
		Status:      model.TxCompleted,
		AmountCents: ticket.PriceCents,
		Currency:    ticket.Currency,
		Metadata:    map[string]string{},
	}
	entry.PaymentMethod = &body.PaymentMethod
	if body.PaymentReference != "" {
		entry.PaymentReference = &body.PaymentReference
	}
	if err := h.Transactions.CreateTx(ctx, tx, entry); err != nil {
		return h.respondError(c, err)
	}
	if err := tx.Commit(); err != nil {
		return h.respondError(c, err)
	}
	committed = true
	monitoring.TrackOperation("purchase", "ok")

	if err := h.Publisher.Publish(ctx, queue.QueueTicketPurchased, queue.TicketPurchased{
		TicketID:     ticket.ID,
		UserID:       userID,
		EventID:      ticket.EventID,
		Price:        model.AmountFromCents(ticket.PriceCents),
		Currency:     ticket.Currency,
		PurchaseDate: *ticket.PurchaseDate,
	}); err != nil {
		h.Logger.WithError(err).WithField("ticket_id", ticket.ID).Error("publish ticket_purchased")
	}
	if err := h.Publisher.Publish(ctx, queue.QueueNotification, queue.Notification{
		Type:     "ticket_purchased",
		UserID:   userID,
		EventID:  ticket.EventID,
		TicketID: ticket.ID,
		Message:  "Your ticket has been purchased successfully",
	}); err != nil {
		h.Logger.WithError(err).WithField("ticket_id", ticket.ID).Error("publish notification_event")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Ticket purchased successfully",
		"ticket":  ticketResponse(ticket),
	})
}

// Cancel handles POST /api/tickets/:ticketId/cancel. Holders may cancel
// their own reserved or purchased tickets; administrators may cancel any.
// Cancelled tickets never return to the sellable pool.
func (h *TicketHandler) Cancel(c echo.Context) error {
	userID, role, _ := currentUser(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticketID := c.Param("ticketId")

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body)
	ctx := c.Request().Context()

	peek, err := h.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		monitoring.TrackOperation("cancel", "not_found")
		return h.respondError(c, err)
	}

	tx, err := h.Inventories.DB().BeginTx(ctx, nil)
	if err != nil {
		return h.respondError(c, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	inv, err := h.Inventories.GetByIDForUpdateTx(ctx, tx, peek.InventoryID)
	if err != nil {
		return h.respondError(c, err)
	}
	ticket, err := h.Tickets.GetByIDForUpdateTx(ctx, tx, ticketID)
	if err != nil {
		return h.respondError(c, err)
	}

	// A lapsed hold is reclaimed, not cancelled; the caller no longer
	// holds anything.
	now := time.Now().UTC()
	if ticket.ReservationLapsed(now) {
		ticket.Status = model.TicketAvailable
		ticket.UserID = nil
		ticket.ReservedExpiresAt = nil
		if err := h.Tickets.UpdateTx(ctx, tx, ticket); err != nil {
			return h.respondError(c, err)
		}
		if err := inv.Release(1); err != nil {
			return h.respondError(c, err)
		}
		if err := h.Inventories.UpdateTx(ctx, tx, inv); err != nil {
			return h.respondError(c, err)
		}
		if err := tx.Commit(); err != nil {
			return h.respondError(c, err)
		}
		committed = true
		monitoring.TrackOperation("cancel", "reservation_lapsed")
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation has expired"})
	}

	prior, err := ticket.Cancel(userID, isStaff(role))
	if err != nil {
		monitoring.TrackOperation("cancel", "rejected")
		return h.respondError(c, err)
	}
	if err := inv.CancelFrom(prior); err != nil {
		return h.respondError(c, err)
	}
	if err := h.Tickets.UpdateTx(ctx, tx, ticket); err != nil {
		return h.respondError(c, err)
	}
	if err := h.Inventories.UpdateTx(ctx, tx, inv); err != nil {
		return h.respondError(c, err)
	}
	meta := map[string]string{"prior_status": prior, "cancelled_by": userID}
	if body.Reason != "" {
		meta["reason"] = body.Reason
	}
	// A purchased-path cancellation is money returned, not just a hold
	// released; the ledger status records that.
	txStatus := model.TxCompleted
	if prior == model.TicketPurchased {
		txStatus = model.TxRefunded
	}
	if err := h.Transactions.CreateTx(ctx, tx, &model.Transaction{
		TicketID:    ticket.ID,
		EventID:     ticket.EventID,
		UserID:      userID,
		Type:        model.TxCancellation,
		Status:      txStatus,
		AmountCents: ticket.PriceCents,
		Currency:    ticket.Currency,
		Metadata:    meta,
	}); err != nil {
		return h.respondError(c, err)
	}
	if err := tx.Commit(); err != nil {
		return h.respondError(c, err)
	}
	committed = true
	monitoring.TrackOperation("cancel", "ok")

	holder := userID
	if peek.UserID != nil {
		holder = *peek.UserID
	}
	if err := h.Publisher.Publish(ctx, queue.QueueTicketCancelled, queue.TicketCancelled{
		TicketID: ticket.ID,
		UserID:   holder,
		EventID:  ticket.EventID,
		Price:    model.AmountFromCents(ticket.PriceCents),
		Currency: ticket.Currency,
	}); err != nil {
		h.Logger.WithError(err).WithField("ticket_id", ticket.ID).Error("publish ticket_cancelled")
	}
	if err := h.Publisher.Publish(ctx, queue.QueueNotification, queue.Notification{
		Type:     "ticket_cancelled",
		UserID:   holder,
		EventID:  ticket.EventID,
		TicketID: ticket.ID,
		Message:  "Your ticket has been cancelled",
	}); err != nil {
		h.Logger.WithError(err).WithField("ticket_id", ticket.ID).Error("publish notification_event")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Ticket cancelled successfully",
		"ticket":  ticketResponse(ticket),
	})
}

// Validate handles POST /api/tickets/:ticketId/validate. Gate staff
// present the scanned redemption payload; a matching proof flips the
// ticket to used exactly once. Restricted to admin and organizer roles by
// middleware.
func (h *TicketHandler) Validate(c echo.Context) error {
	staffID, _, _ := currentUser(c)
	ticketID := c.Param("ticketId")

	var body struct {
		QRData string `json:"qrData"`
	}
	if err := c.Bind(&body); err != nil || body.QRData == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "qrData is required"})
	}
	payload, err := qr.Decode([]byte(body.QRData))
	if err != nil {
		monitoring.TrackOperation("validate", "malformed")
		return h.respondError(c, err)
	}
	ctx := c.Request().Context()

	tx, err := h.Inventories.DB().BeginTx(ctx, nil)
	if err != nil {
		return h.respondError(c, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Redemption does not touch inventory counters, so only the ticket
	// row is locked.
	ticket, err := h.Tickets.GetByIDForUpdateTx(ctx, tx, ticketID)
	if err != nil {
		monitoring.TrackOperation("validate", "not_found")
		return h.respondError(c, err)
	}
	if err := qr.Validate(payload, ticket); err != nil {
		monitoring.TrackOperation("validate", "mismatch")
		return h.respondError(c, err)
	}
	if err := ticket.MarkUsed(); err != nil {
		monitoring.TrackOperation("validate", "conflict")
		return h.respondError(c, err)
	}
	if err := h.Tickets.UpdateTx(ctx, tx, ticket); err != nil {
		return h.respondError(c, err)
	}
	now := time.Now().UTC()
	if err := h.Transactions.CreateTx(ctx, tx, &model.Transaction{
		TicketID:    ticket.ID,
		EventID:     ticket.EventID,
		UserID:      staffID,
		Type:        model.TxValidation,
		Status:      model.TxCompleted,
		AmountCents: 0,
		Currency:    ticket.Currency,
		Metadata: map[string]string{
			"validatedBy":    staffID,
			"validationTime": now.Format(time.RFC3339),
		},
	}); err != nil {
		return h.respondError(c, err)
	}
	if err := tx.Commit(); err != nil {
		return h.respondError(c, err)
	}
	committed = true
	monitoring.TrackOperation("validate", "ok")

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Ticket validated successfully",
		"valid":   true,
		"ticket":  ticketResponse(ticket),
	})
}

// ListMine handles GET /api/my/tickets.
func (h *TicketHandler) ListMine(c echo.Context) error {
	userID, _, token := currentUser(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return h.listUser(c, userID, token)
}

// ListUserTickets handles GET /api/users/:userId/tickets. Users may list
// their own tickets; administrators may list anyone's.
func (h *TicketHandler) ListUserTickets(c echo.Context) error {
	actorID, role, token := currentUser(c)
	target := c.Param("userId")
	if target != actorID && !isStaff(role) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return h.listUser(c, target, token)
}

// listUser renders a user's ticket history. Event details come from the
// catalog with a cached fallback; a catalog outage degrades the listing to
// a placeholder instead of failing it.
func (h *TicketHandler) listUser(c echo.Context, userID, token string) error {
	ctx := c.Request().Context()
	tickets, err := h.Tickets.ListByUser(ctx, userID)
	if err != nil {
		return h.respondError(c, err)
	}
	out := make([]echo.Map, 0, len(tickets))
	for i := range tickets {
		entry := ticketResponse(&tickets[i])
		if h.Catalog != nil {
			if s := h.Catalog.GetSummary(ctx, tickets[i].EventID, token); s != nil {
				entry["event"] = s
			} else {
				entry["event"] = echo.Map{"title": "Event details not available"}
			}
		}
		out = append(out, entry)
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": out, "count": len(out)})
}

// pageWindow reads the page and limit query parameters. Pagination is
// one-based; out-of-range or malformed values fall back to page 1 and the
// configured default limit, capped at 500. The returned offset feeds the
// repository's LIMIT/OFFSET query directly.
func pageWindow(c echo.Context, defaultLimit int) (page, limit, offset int) {
	limit = defaultLimit
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	page = 1
	if v := c.QueryParam("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	return page, limit, (page - 1) * limit
}

func transactionResponse(t *model.Transaction) echo.Map {
	resp := echo.Map{
		"id":        t.ID,
		"ticketId":  t.TicketID,
		"eventId":   t.EventID,
		"type":      t.Type,
		"status":    t.Status,
		"amount":    model.AmountFromCents(t.AmountCents),
		"currency":  t.Currency,
		"createdAt": t.CreatedAt.Format(time.RFC3339),
	}
	if t.PaymentMethod != nil {
		resp["paymentMethod"] = *t.PaymentMethod
	}
	if len(t.Metadata) > 0 {
		resp["metadata"] = t.Metadata
	}
	return resp
}

// History handles GET /api/tickets/:ticketId/transactions. It returns the
// ticket's ledger entries, oldest first. Holders may read their own
// ticket's history; staff may read any.
func (h *TicketHandler) History(c echo.Context) error {
	userID, role, _ := currentUser(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticketID := c.Param("ticketId")
	ctx := c.Request().Context()

	ticket, err := h.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return h.respondError(c, err)
	}
	if !isStaff(role) && !ticket.OwnedBy(userID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	entries, err := h.Transactions.ListByTicket(ctx, ticketID)
	if err != nil {
		return h.respondError(c, err)
	}
	out := make([]echo.Map, 0, len(entries))
	for i := range entries {
		out = append(out, transactionResponse(&entries[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": out, "count": len(out)})
}

// ListForEvent handles GET /api/events/:eventId/tickets for staff. It
// returns one page of the event's tickets plus the inventory counters.
func (h *TicketHandler) ListForEvent(c echo.Context) error {
	eventID := c.Param("eventId")
	status := c.QueryParam("status")
	switch status {
	case "", model.TicketAvailable, model.TicketReserved, model.TicketPurchased, model.TicketCancelled, model.TicketUsed:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status filter"})
	}
	page, limit, offset := pageWindow(c, h.ListLimit)
	ctx := c.Request().Context()

	inv, err := h.Inventories.GetByEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no tickets registered for this event"})
		}
		return h.respondError(c, err)
	}
	tickets, total, err := h.Tickets.ListByEvent(ctx, eventID, status, limit, offset)
	if err != nil {
		return h.respondError(c, err)
	}
	out := make([]echo.Map, 0, len(tickets))
	for i := range tickets {
		out = append(out, ticketResponse(&tickets[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"tickets": out,
		"total":   total,
		"limit":   limit,
		"page":    page,
		"inventory": echo.Map{
			"eventId":   inv.EventID,
			"total":     inv.TotalTickets,
			"available": inv.AvailableTickets,
			"reserved":  inv.ReservedTickets,
			"sold":      inv.SoldTickets,
			"cancelled": inv.CancelledTickets,
			"status":    inv.EffectiveStatus(),
			"price":     model.AmountFromCents(inv.BasePriceCents),
			"currency":  inv.Currency,
			"saleEnds":  inv.SaleEndsAt.Format(time.RFC3339),
		},
	})
}
