package conversation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrIllegalTransition is returned when the transition table forbids a move.
	ErrIllegalTransition = errors.New("conversation: illegal transition")
	// ErrUnknownState is returned when a persisted state name is not recognised.
	ErrUnknownState = errors.New("conversation: unknown state")
)

// StateName is the persisted discriminator of a State.
type StateName string

const (
	NameIdle                         StateName = "idle"
	NameBrowsing                     StateName = "browsing"
	NameNegotiating                  StateName = "negotiating"
	NameAwaitingCheckoutConfirmation StateName = "awaiting_checkout_confirmation"
	NameAwaitingShippingInfo         StateName = "awaiting_shipping_info"
	NameCompleted                    StateName = "completed"
)

// State is one variant of the conversation state union.
type State interface {
	Name() StateName
	state()
}

type Idle struct{}

type Browsing struct{}

// Negotiating carries the percentage currently under discussion.
type Negotiating struct {
	Percent decimal.Decimal `json:"percent"`
}

type AwaitingCheckoutConfirmation struct{}

// AwaitingShippingInfo follows a committed order until the buyer sends an address.
type AwaitingShippingInfo struct {
	OrderID uuid.UUID `json:"orderId"`
}

// Completed closes the flow for an order.
type Completed struct {
	OrderID uuid.UUID     `json:"orderId"`
	Address *ShippingInfo `json:"address,omitempty"`
}

// ShippingInfo is the delivery address collected after checkout.
type ShippingInfo struct {
	Name       string `json:"name" validate:"required,max=128"`
	Phone      string `json:"phone" validate:"required,max=32"`
	Line1      string `json:"line1" validate:"required,max=256"`
	Line2      string `json:"line2" validate:"max=256"`
	City       string `json:"city" validate:"required,max=128"`
	State      string `json:"state" validate:"required,max=64"`
	PostalCode string `json:"postalCode" validate:"required,max=16"`
}

func (Idle) Name() StateName                         { return NameIdle }
func (Browsing) Name() StateName                     { return NameBrowsing }
func (Negotiating) Name() StateName                  { return NameNegotiating }
func (AwaitingCheckoutConfirmation) Name() StateName { return NameAwaitingCheckoutConfirmation }
func (AwaitingShippingInfo) Name() StateName         { return NameAwaitingShippingInfo }
func (Completed) Name() StateName                    { return NameCompleted }

func (Idle) state()                         {}
func (Browsing) state()                     {}
func (Negotiating) state()                  {}
func (AwaitingCheckoutConfirmation) state() {}
func (AwaitingShippingInfo) state()         {}
func (Completed) state()                    {}

// An order commit is authoritative, so every state may move to
// awaiting_shipping_info.
var transitions = map[StateName][]StateName{
	NameIdle:                         {NameBrowsing, NameAwaitingShippingInfo},
	NameBrowsing:                     {NameNegotiating, NameAwaitingCheckoutConfirmation, NameIdle, NameAwaitingShippingInfo},
	NameNegotiating:                  {NameBrowsing, NameNegotiating, NameAwaitingCheckoutConfirmation, NameIdle, NameAwaitingShippingInfo},
	NameAwaitingCheckoutConfirmation: {NameBrowsing, NameNegotiating, NameIdle, NameAwaitingShippingInfo},
	NameAwaitingShippingInfo:         {NameCompleted, NameAwaitingShippingInfo, NameIdle},
	NameCompleted:                    {NameIdle, NameBrowsing, NameAwaitingShippingInfo},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to StateName) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Encode splits a state into its name and JSON payload.
func Encode(s State) (StateName, json.RawMessage, error) {
	if s == nil {
		s = Idle{}
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return "", nil, fmt.Errorf("conversation: encode %s: %w", s.Name(), err)
	}
	return s.Name(), payload, nil
}

// Decode rebuilds a state from its persisted form. An empty name is Idle.
func Decode(name StateName, payload json.RawMessage) (State, error) {
	var target State
	switch name {
	case "", NameIdle:
		return Idle{}, nil
	case NameBrowsing:
		return Browsing{}, nil
	case NameAwaitingCheckoutConfirmation:
		return AwaitingCheckoutConfirmation{}, nil
	case NameNegotiating:
		var s Negotiating
		if err := unmarshal(payload, &s); err != nil {
			return nil, err
		}
		target = s
	case NameAwaitingShippingInfo:
		var s AwaitingShippingInfo
		if err := unmarshal(payload, &s); err != nil {
			return nil, err
		}
		target = s
	case NameCompleted:
		var s Completed
		if err := unmarshal(payload, &s); err != nil {
			return nil, err
		}
		target = s
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	return target, nil
}

func unmarshal(payload json.RawMessage, dst any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("conversation: decode payload: %w", err)
	}
	return nil
}
