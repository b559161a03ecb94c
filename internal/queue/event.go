package queue

import "time"

// Queue names. Inbound queues are fed by the event catalog service,
// outbound queues are consumed by the catalog and the notification
// service. All queues are durable and use the default exchange with the
// queue name as routing key.
const (
	QueueEventCreated   = "event_created"
	QueueEventUpdated   = "event_updated"
	QueueEventCancelled = "event_cancelled"

	QueueTicketReserved  = "ticket_reserved"
	QueueTicketPurchased = "ticket_purchased"
	QueueTicketCancelled = "ticket_cancelled"
	QueueNotification    = "notification_event"
)

// EventCreated announces a newly published event whose ticket pool must
// be provisioned.
type EventCreated struct {
	ID               string    `json:"id"`
	TicketsAvailable int       `json:"ticketsAvailable"`
	TicketPrice      float64   `json:"ticketPrice"`
	Currency         string    `json:"currency"`
	StartDate        time.Time `json:"startDate"`
}

// EventUpdated announces changed event details. A Status of "cancelled"
// is treated the same as an EventCancelled message.
type EventUpdated struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	TicketsAvailable int       `json:"ticketsAvailable"`
	TicketPrice      float64   `json:"ticketPrice"`
	Currency         string    `json:"currency"`
	StartDate        time.Time `json:"startDate"`
}

// EventCancelled announces a cancelled event; its inventory is closed and
// every ticket holder is notified.
type EventCancelled struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	OrganizerID string    `json:"organizerId"`
	StartDate   time.Time `json:"startDate"`
}

// TicketReserved is published after a reservation commits.
type TicketReserved struct {
	TicketID  string    `json:"ticketId"`
	UserID    string    `json:"userId"`
	EventID   string    `json:"eventId"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TicketPurchased is published after a purchase commits.
type TicketPurchased struct {
	TicketID     string    `json:"ticketId"`
	UserID       string    `json:"userId"`
	EventID      string    `json:"eventId"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency"`
	PurchaseDate time.Time `json:"purchaseDate"`
}

// TicketCancelled is published after a cancellation commits, including
// the per-ticket cancellations of an event close-out.
type TicketCancelled struct {
	TicketID string  `json:"ticketId"`
	UserID   string  `json:"userId"`
	EventID  string  `json:"eventId"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// Notification asks the notification service to contact a user.
type Notification struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	EventID  string `json:"eventId"`
	TicketID string `json:"ticketId,omitempty"`
	Message  string `json:"message"`
}
