package orders

import (
	"fmt"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Event is an input to the order state machine.
type Event string

const (
	EventPay     Event = "pay"
	EventShip    Event = "ship"
	EventDeliver Event = "deliver"
	EventCancel  Event = "cancel"
	EventExpire  Event = "expire"
)

// Effect is a side effect a transition requires. Callers run every flagged effect in
// the same transaction as the status change.
type Effect uint8

const (
	EffectCreditSales Effect = 1 << iota
	EffectClearCart
	EffectStampShipment
	EffectAccruePayout
	EffectRestoreStock
	EffectReverseSales
)

// Has reports whether flag is part of the effect set.
func (e Effect) Has(flag Effect) bool {
	return e&flag != 0
}

// Transition is one row of the order state machine.
type Transition struct {
	From    enums.OrderStatus
	Event   Event
	To      enums.OrderStatus
	Effects Effect
}

// SelfLoop reports whether the transition keeps the order in place. Such transitions
// skip the status update and only run their effects.
func (t Transition) SelfLoop() bool {
	return t.From == t.To
}

type transitionKey struct {
	from  enums.OrderStatus
	event Event
}

var transitions = map[transitionKey]Transition{}

func init() {
	for _, t := range []Transition{
		{From: enums.OrderStatusPending, Event: EventPay, To: enums.OrderStatusPaid, Effects: EffectCreditSales | EffectClearCart},
		{From: enums.OrderStatusPending, Event: EventCancel, To: enums.OrderStatusCancelled, Effects: EffectRestoreStock},
		{From: enums.OrderStatusPending, Event: EventExpire, To: enums.OrderStatusCancelled, Effects: EffectRestoreStock},
		{From: enums.OrderStatusPaid, Event: EventShip, To: enums.OrderStatusShipped, Effects: EffectStampShipment},
		{From: enums.OrderStatusPaid, Event: EventCancel, To: enums.OrderStatusCancelled, Effects: EffectRestoreStock | EffectReverseSales},
		{From: enums.OrderStatusShipped, Event: EventDeliver, To: enums.OrderStatusDelivered, Effects: EffectAccruePayout},
		// a multi-supplier order is delivered once; the remaining suppliers accrue on their own call
		{From: enums.OrderStatusDelivered, Event: EventDeliver, To: enums.OrderStatusDelivered, Effects: EffectAccruePayout},
	} {
		transitions[transitionKey{from: t.From, event: t.Event}] = t
	}
}

// Next looks up the transition for (from, event). Pairs absent from the table yield an
// INVALID_TRANSITION error.
func Next(from enums.OrderStatus, event Event) (Transition, error) {
	t, ok := transitions[transitionKey{from: from, event: event}]
	if !ok {
		return Transition{}, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot %s an order in status %s", event, from)).
			WithDetails(map[string]any{"from": from, "event": event})
	}
	return t, nil
}

// Transitions returns a copy of the table, in no particular order.
func Transitions() []Transition {
	out := make([]Transition, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, t)
	}
	return out
}
