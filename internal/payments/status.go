package payments

import (
	"strings"
	"time"
)

// EventStatus is the normalized outcome reported by the gateway, either via
// webhook or by polling the link. Exactly one of the concrete types below.
type EventStatus interface {
	isEventStatus()
	Name() string
}

// Paid means the money was received.
type Paid struct {
	At        time.Time
	Amount    int64
	Reference string
}

// Cancelled means the buyer or merchant cancelled the link.
type Cancelled struct {
	Reason string
}

// Expired means the link lapsed without payment.
type Expired struct{}

// Failed means the gateway reported an unsuccessful attempt.
type Failed struct {
	Code    string
	Message string
}

// Unknown covers anything the gateway sends that we do not act on.
type Unknown struct {
	Raw string
}

func (Paid) isEventStatus()      {}
func (Cancelled) isEventStatus() {}
func (Expired) isEventStatus()   {}
func (Failed) isEventStatus()    {}
func (Unknown) isEventStatus()   {}

func (Paid) Name() string      { return "paid" }
func (Cancelled) Name() string { return "cancelled" }
func (Expired) Name() string   { return "expired" }
func (Failed) Name() string    { return "failed" }
func (Unknown) Name() string   { return "unknown" }

// Outcome reports what applying a gateway status did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNotFound  Outcome = "not_found"
)

// FromLinkStatus maps a polled link status onto EventStatus.
func FromLinkStatus(status string, paidAt time.Time, amount int64, reason string) EventStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID":
		return Paid{At: paidAt, Amount: amount}
	case "CANCELLED":
		return Cancelled{Reason: reason}
	case "EXPIRED":
		return Expired{}
	case "FAILED":
		return Failed{Code: status}
	default:
		return Unknown{Raw: status}
	}
}
