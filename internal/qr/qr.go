// Package qr issues and verifies the redemption proof carried by a
// purchased ticket. The proof encodes a JSON payload containing the ticket
// identity and a secret validation code generated from crypto/rand; the
// code is never derivable from the ticket id or any other public field.
package qr

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/eventtix/ticket-service/internal/model"
)

// codeBytes yields a 6-character upper-hex validation code.
const codeBytes = 3

// Payload is the redemption payload encoded into the QR proof and
// presented back at the gate.
type Payload struct {
	TicketID       string `json:"ticketId"`
	EventID        string `json:"eventId"`
	UserID         string `json:"userId"`
	ValidationCode string `json:"validationCode"`
	IssuedAt       int64  `json:"issuedAt"`
}

// NewValidationCode returns a random upper-hex code to be matched at the
// gate. The underlying call to crypto/rand ensures the code cannot be
// predicted from the ticket id or a sequence.
func NewValidationCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate validation code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// Issue builds the redemption payload for a freshly purchased ticket and
// renders it as a QR PNG data URL. It returns the proof and the validation
// code that must be stored on the ticket row.
func Issue(ticketID, eventID, userID string, now time.Time) (proof, validationCode string, err error) {
	code, err := NewValidationCode()
	if err != nil {
		return "", "", err
	}
	payload := Payload{
		TicketID:       ticketID,
		EventID:        eventID,
		UserID:         userID,
		ValidationCode: code,
		IssuedAt:       now.UTC().UnixMilli(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("marshal redemption payload: %w", err)
	}
	png, err := qrcode.Encode(string(raw), qrcode.Medium, 256)
	if err != nil {
		return "", "", fmt.Errorf("render qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), code, nil
}

// Decode parses a presented redemption payload. The input is the JSON the
// client scanned out of the QR code. A malformed payload is a validation
// failure, not a server fault.
func Decode(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("malformed redemption payload: %w", model.ErrInvalidProof)
	}
	return p, nil
}

// Validate checks a presented payload against the stored ticket. Every
// identity field and the validation code must match exactly; any mismatch
// yields ErrInvalidProof.
func Validate(p Payload, t *model.Ticket) error {
	if t.UserID == nil {
		return fmt.Errorf("ticket %s has no holder: %w", t.ID, model.ErrInvalidProof)
	}
	if p.TicketID != t.ID || p.EventID != t.EventID || p.UserID != *t.UserID || p.ValidationCode == "" || p.ValidationCode != t.ValidationCode {
		return fmt.Errorf("redemption payload does not match ticket %s: %w", t.ID, model.ErrInvalidProof)
	}
	return nil
}
