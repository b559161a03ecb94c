// Package model defines the domain entities of the ticket service and the
// sentinel error values shared across layers. These sentinels allow the
// HTTP handlers to distinguish between different failure scenarios: for
// example, ErrConflict signals that a requested transition is not legal
// from the ticket's current status, while ErrForbidden indicates that the
// caller is not the ticket's owner. Handlers translate each sentinel into
// a specific HTTP response so that callers can tell "sold out" apart from
// "not yours" and "already used".
package model

import "errors"

// ErrNotFound is returned when a ticket, inventory or event does not
// exist. Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an operation cannot proceed because of the
// current state: the inventory is exhausted, a ticket is not in the status
// the requested transition expects, or a reservation belongs to another
// user. Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrForbidden is returned when the caller lacks the role or ownership
// required for an operation. Handlers should translate this into an HTTP
// 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrInvariant is returned when applying an operation would break the
// ticket-count conservation invariant, such as resizing an inventory below
// the number of sold plus reserved tickets. The operation must be rejected
// outright, never clamped.
var ErrInvariant = errors.New("invariant violation")

// ErrInvalidProof is returned when a presented redemption payload does not
// match the stored ticket exactly. It is a validation failure, not a
// server fault.
var ErrInvalidProof = errors.New("invalid redemption proof")

// ErrEventNotFound is returned when the event catalog reports that no such
// event exists.
var ErrEventNotFound = errors.New("event not found")

// ErrEventUnavailable is returned when the event exists but is not open
// for ticket sales (not published, or its inventory is not active).
var ErrEventUnavailable = errors.New("event unavailable")

// ErrUpstream is returned when a call to an external collaborator (the
// event catalog) failed or timed out. It maps to an HTTP 502 response.
var ErrUpstream = errors.New("upstream unavailable")
