// Package classifier maps raw gateway notifications to a gateway reference and the
// transaction status they imply. It has no side effects.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pixrecon/internal/app/model"
)

// ErrUnrecognized is returned for payloads that can never be applied, whatever the
// number of deliveries.
var ErrUnrecognized = errors.New("unrecognized notification")

type Event struct {
	GatewayReference string
	Name             string
	// Kind is the transaction kind implied by the payload shape, empty when unknown
	Kind   model.Kind
	Target model.Status
}

// Transition reports whether the event moves a pending transaction anywhere.
func (e Event) Transition() bool {
	return e.Target.Terminal()
}

var exact = map[string]model.Status{
	"PAYMENT_CONFIRMED":  model.StatusConfirmed,
	"PAYMENT_RECEIVED":   model.StatusConfirmed,
	"TRANSFER_CONFIRMED": model.StatusConfirmed,
	"TRANSFER_COMPLETED": model.StatusConfirmed,
	"PAYMENT_FAILED":     model.StatusFailed,
	"PAYMENT_CANCELLED":  model.StatusFailed,
	"TRANSFER_FAILED":    model.StatusFailed,
	"TRANSFER_CANCELLED": model.StatusFailed,
}

var suffixes = []struct {
	suffix string
	status model.Status
}{
	{"_CONFIRMED", model.StatusConfirmed},
	{"_RECEIVED", model.StatusConfirmed},
	{"_COMPLETED", model.StatusConfirmed},
	{"_FAILED", model.StatusFailed},
	{"_CANCELLED", model.StatusFailed},
}

// Status maps an event name to the status it implies, model.StatusPending when neutral.
// Names are matched as sent: a terminal status cannot be undone, so anything not
// spelled exactly like a known event stays neutral.
func Status(eventName string) model.Status {
	if s, ok := exact[eventName]; ok {
		return s
	}
	for _, sf := range suffixes {
		if strings.HasSuffix(eventName, sf.suffix) {
			return sf.status
		}
	}
	return model.StatusPending
}

type envelope struct {
	Event     json.RawMessage `json:"event"`
	Reference json.RawMessage `json:"reference"`
	Payment   json.RawMessage `json:"payment"`
	Transfer  json.RawMessage `json:"transfer"`
}

type object struct {
	ID json.RawMessage `json:"id"`
}

// Classify a raw notification. Fails with ErrUnrecognized when the payload is not a
// JSON object or carries no usable gateway reference.
func Classify(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: json decode: %v", ErrUnrecognized, err)
	}

	e := Event{
		Name: rawString(env.Event),
	}

	switch {
	case idOf(env.Payment) != "":
		e.GatewayReference = idOf(env.Payment)
		e.Kind = model.KindDeposit
	case idOf(env.Transfer) != "":
		e.GatewayReference = idOf(env.Transfer)
		e.Kind = model.KindWithdrawal
	default:
		e.GatewayReference = str(env.Reference)
	}

	if e.GatewayReference == "" {
		return Event{}, fmt.Errorf("%w: missing reference", ErrUnrecognized)
	}

	e.Target = Status(e.Name)

	return e, nil
}

func idOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return ""
	}
	return str(o.ID)
}

func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// str accepts strings and numbers, gateways are not consistent about ids
func str(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
