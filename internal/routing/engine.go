package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowpbx/callrouter/internal/phone"
)

// DefaultCRMTimeout bounds the owner lookup when Config.CRMTimeout is unset.
const DefaultCRMTimeout = 5 * time.Second

// Outcome classifies how a call was routed.
type Outcome string

const (
	OutcomeAgent         Outcome = "agent"
	OutcomeNoOwner       Outcome = "no_owner"
	OutcomeUnmappedOwner Outcome = "unmapped_owner"
	OutcomeNoNumber      Outcome = "no_number"
	OutcomeCRMError      Outcome = "crm_error"
)

// OwnerResolver finds the CRM owner of a caller number.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, number phone.Number) (ownerID string, found bool, err error)
}

// AgentMapper translates a CRM owner into a telephony agent.
type AgentMapper interface {
	AgentFor(ownerID string) (agentID string, ok bool)
}

// Recorder receives routing metrics.
type Recorder interface {
	RecordDecision(outcome string)
	ObserveCRM(result string, d time.Duration)
}

// InboundCallEvent is the routing input extracted from a webhook request.
// IncomingNumber is empty when the payload carried no caller number.
type InboundCallEvent struct {
	IncomingNumber string
}

// Decision is the result of routing one call. Response is always a valid
// transfer payload, whatever the Outcome.
type Decision struct {
	Outcome  Outcome
	Number   phone.Number
	OwnerID  string
	AgentID  string
	Err      error
	Response Response
}

// Config holds Engine dependencies.
type Config struct {
	Resolver   OwnerResolver
	Agents     AgentMapper
	Fallback   FallbackChain
	CRMTimeout time.Duration
	Logger     *slog.Logger
	Recorder   Recorder
}

// Engine decides where an inbound call should ring. It holds no mutable
// state and may be used from concurrent requests.
type Engine struct {
	resolver   OwnerResolver
	agents     AgentMapper
	fallback   FallbackChain
	crmTimeout time.Duration
	logger     *slog.Logger
	recorder   Recorder
}

// NewEngine creates a routing engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		resolver:   cfg.Resolver,
		agents:     cfg.Agents,
		fallback:   cfg.Fallback,
		crmTimeout: cfg.CRMTimeout,
		logger:     logger.With("subsystem", "routing"),
		recorder:   cfg.Recorder,
	}
	if e.crmTimeout <= 0 {
		e.crmTimeout = DefaultCRMTimeout
	}
	if e.recorder == nil {
		e.recorder = noopRecorder{}
	}
	return e
}

type state int

const (
	stateNormalizing state = iota
	stateResolving
	stateMapping
	stateBuilding
	stateResponded
)

// Route runs the routing pipeline once for ev: normalize the caller
// number, resolve its CRM owner, map the owner to an agent and build the
// transfer list. Every failure degrades to the fallback chain; Route never
// returns an unroutable response.
func (e *Engine) Route(ctx context.Context, ev InboundCallEvent) Decision {
	var (
		d        Decision
		resolved []Destination
	)

	for st := stateNormalizing; st != stateResponded; {
		switch st {
		case stateNormalizing:
			n, ok := phone.Normalize(ev.IncomingNumber)
			if !ok {
				e.logger.Warn("incoming number missing, routing to fallback chain")
				d.Outcome = OutcomeNoNumber
				st = stateBuilding
				continue
			}
			d.Number = n
			st = stateResolving

		case stateResolving:
			ownerID, found, err := e.resolveOwner(ctx, d.Number)
			if err != nil {
				e.logger.Error("crm lookup failed, routing to fallback chain",
					"number", d.Number,
					"error", err,
				)
				d.Outcome = OutcomeCRMError
				d.Err = err
				st = stateBuilding
				continue
			}
			if !found {
				e.logger.Info("no contact owner found", "number", d.Number)
				d.Outcome = OutcomeNoOwner
				st = stateBuilding
				continue
			}
			e.logger.Info("contact owner found", "number", d.Number, "owner_id", ownerID)
			d.OwnerID = ownerID
			st = stateMapping

		case stateMapping:
			agentID, ok := e.agents.AgentFor(d.OwnerID)
			if !ok {
				e.logger.Info("owner has no agent mapping, routing to fallback chain", "owner_id", d.OwnerID)
				d.Outcome = OutcomeUnmappedOwner
			} else {
				e.logger.Info("routing to owner's agent", "owner_id", d.OwnerID, "agent_id", agentID)
				d.Outcome = OutcomeAgent
				d.AgentID = agentID
				resolved = []Destination{AgentDestination(agentID)}
			}
			st = stateBuilding

		case stateBuilding:
			d.Response = e.build(resolved)
			st = stateResponded
		}
	}

	e.recorder.RecordDecision(string(d.Outcome))
	return d
}

// resolveOwner calls the resolver under the CRM deadline and records its
// latency.
func (e *Engine) resolveOwner(ctx context.Context, n phone.Number) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.crmTimeout)
	defer cancel()

	start := time.Now()
	ownerID, found, err := e.resolver.ResolveOwner(ctx, n)
	if err != nil {
		e.recorder.ObserveCRM("error", time.Since(start))
		return "", false, fmt.Errorf("resolving owner of %s: %w", n, err)
	}
	e.recorder.ObserveCRM("ok", time.Since(start))
	return ownerID, found, nil
}

// build appends the fallback chain to resolved and wraps it in a transfer
// action. The returned slice never aliases the engine's fallback chain.
func (e *Engine) build(resolved []Destination) Response {
	to := make([]Destination, 0, len(resolved)+len(e.fallback))
	to = append(to, resolved...)
	to = append(to, e.fallback[:]...)
	return Response{Actions: []Action{{Action: "transfer", To: to}}}
}

// FallbackResponse returns the fallback-only transfer payload.
func (e *Engine) FallbackResponse() Response {
	return e.build(nil)
}

type noopRecorder struct{}

func (noopRecorder) RecordDecision(string)            {}
func (noopRecorder) ObserveCRM(string, time.Duration) {}
