package routing

import (
	"fmt"

	"github.com/flowpbx/callrouter/internal/phone"
)

// Destination types understood by the telephony platform.
const (
	TypeUser        = "user"
	TypePhoneNumber = "phone_number"
)

// Destination is one entry of a transfer list: either an agent (Type user,
// ID set) or an external number (Type phone_number, Number set).
type Destination struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Number string `json:"number,omitempty"`
}

// AgentDestination targets a telephony agent.
func AgentDestination(agentID string) Destination {
	return Destination{Type: TypeUser, ID: agentID}
}

// PhoneDestination targets an E.164 phone number.
func PhoneDestination(number string) Destination {
	return Destination{Type: TypePhoneNumber, Number: number}
}

// FallbackChain is the fixed pair of numbers appended to every transfer.
type FallbackChain [2]Destination

// NewFallbackChain builds the chain that rings primary, then secondary.
func NewFallbackChain(primary, secondary string) (FallbackChain, error) {
	for _, n := range []string{primary, secondary} {
		if !phone.IsE164(n) {
			return FallbackChain{}, fmt.Errorf("fallback number %q is not E.164", n)
		}
	}
	return FallbackChain{PhoneDestination(primary), PhoneDestination(secondary)}, nil
}

// Action is a single instruction in a routing response.
type Action struct {
	Action string        `json:"action"`
	To     []Destination `json:"to"`
}

// Response is the JSON body returned to the telephony platform.
type Response struct {
	Actions []Action `json:"actions"`
}

// Destinations returns the transfer list of the first action.
func (r Response) Destinations() []Destination {
	if len(r.Actions) == 0 {
		return nil
	}
	return r.Actions[0].To
}
