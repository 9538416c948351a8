// Package owners maps CRM owner identifiers to telephony agent identifiers.
// The map is loaded once at startup and is read-only afterwards, so a Map
// may be shared between concurrent requests without locking.
package owners

import "strings"

// Entry is one row of the owner table. An empty AgentID records an owner
// that deliberately has no telephony seat.
type Entry struct {
	OwnerID string `yaml:"owner_id"`
	AgentID string `yaml:"agent_id"`
	Name    string `yaml:"name,omitempty"`
}

// Map is an immutable OwnerID -> AgentID lookup table.
type Map struct {
	agents map[string]string
}

// NewMap builds a Map from entries. Later entries win on duplicate owners;
// loaders that need stricter behaviour check for duplicates themselves.
func NewMap(entries []Entry) Map {
	agents := make(map[string]string, len(entries))
	for _, e := range entries {
		agents[strings.TrimSpace(e.OwnerID)] = strings.TrimSpace(e.AgentID)
	}
	return Map{agents: agents}
}

// AgentFor returns the agent mapped to ownerID. Unknown owners and owners
// mapped to an empty placeholder both report ok == false.
func (m Map) AgentFor(ownerID string) (agentID string, ok bool) {
	agentID = m.agents[ownerID]
	if agentID == "" {
		return "", false
	}
	return agentID, true
}

// Len returns the number of owners in the table, mapped or not.
func (m Map) Len() int {
	return len(m.agents)
}

// Mapped returns the number of owners that resolve to an agent.
func (m Map) Mapped() int {
	n := 0
	for _, a := range m.agents {
		if a != "" {
			n++
		}
	}
	return n
}

// DefaultEntries returns the built-in owner table used when no file or
// database source is configured. Owner 1739508 has no agent seat.
func DefaultEntries() []Entry {
	return []Entry{
		{OwnerID: "868950", AgentID: "32443941", Name: "Erica"},
		{OwnerID: "638082", AgentID: "32094151", Name: "Oscar"},
		{OwnerID: "1739501", AgentID: "582374577", Name: "Joan"},
		{OwnerID: "1740316", AgentID: "76535741", Name: "Laura Navarro"},
		{OwnerID: "1739504", AgentID: "587085610", Name: "Marc"},
		{OwnerID: "1739508", AgentID: "", Name: "Pol"},
		{OwnerID: "1739511", AgentID: "79861974", Name: "Raquel"},
		{OwnerID: "1580388", AgentID: "379468330", Name: "Xavi"},
		{OwnerID: "804330", AgentID: "33971907", Name: "Carlos"},
	}
}
