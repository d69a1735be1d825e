package events

import (
	"log/slog"
	"time"
)

// Event kinds broadcast by the consensus engine.
const (
	EvtBlockCreated      = "block.created"
	EvtBlockValidated    = "block.validated"
	EvtBlockFinalized    = "block.finalized"
	EvtModerationStarted = "moderation.started"
	EvtModerationExec    = "moderation.executed"
	EvtProposalCreated   = "proposal.created"
	EvtProposalApproved  = "proposal.approved"
)

// EngineEvent is one entry on the engine's event stream. Exactly one of the
// payload pointers is set, matching Kind.
type EngineEvent struct {
	Kind string    `json:"kind"`
	Time time.Time `json:"time"`

	Block      *BlockEvent      `json:"block,omitempty"`
	Moderation *ModerationEvent `json:"moderation,omitempty"`
	Proposal   *ProposalEvent   `json:"proposal,omitempty"`
}

type BlockEvent struct {
	BlockID  uint64 `json:"blockId"`
	Height   uint64 `json:"height"`
	Type     string `json:"type"`
	ActorUID uint64 `json:"actorUid"`
	Status   string `json:"status"`
}

type ModerationEvent struct {
	CaseID      uint64 `json:"caseId"`
	ContentType string `json:"contentType"`
	ContentID   uint64 `json:"contentId"`
	Decision    string `json:"decision,omitempty"`
}

type ProposalEvent struct {
	ProposalID uint64 `json:"proposalId"`
	Type       string `json:"type"`
	AuthorUID  uint64 `json:"authorUid"`
	Status     string `json:"status"`
}

// EventManager fans events out to in-process subscribers. Slow subscribers
// drop events rather than block the sender.
type EventManager struct {
	subs []*Subscriber

	ops    chan *operation
	closed chan struct{}

	bufferSize int

	log *slog.Logger
}

func NewEventManager() *EventManager {
	return &EventManager{
		ops:        make(chan *operation),
		closed:     make(chan struct{}),
		bufferSize: 1024,
		log:        slog.Default().With("system", "events"),
	}
}

const (
	opSubscribe = iota
	opUnsubscribe
	opSend
	opShutdown
)

type operation struct {
	op  int
	sub *Subscriber
	evt *EngineEvent
}

func (em *EventManager) Run() {
	for op := range em.ops {
		switch op.op {
		case opSubscribe:
			em.subs = append(em.subs, op.sub)
		case opUnsubscribe:
			for i, s := range em.subs {
				if s == op.sub {
					em.subs[i] = em.subs[len(em.subs)-1]
					em.subs = em.subs[:len(em.subs)-1]
					close(s.outgoing)
					break
				}
			}
		case opSend:
			eventsBroadcast.WithLabelValues(op.evt.Kind).Inc()
			for _, s := range em.subs {
				if s.filter != nil && !s.filter(op.evt) {
					continue
				}
				select {
				case s.outgoing <- op.evt:
				default:
					eventsDropped.Inc()
					em.log.Warn("subscriber event overflow, dropping", "kind", op.evt.Kind)
				}
			}
		case opShutdown:
			for _, s := range em.subs {
				close(s.outgoing)
			}
			em.subs = nil
			close(em.closed)
			return
		default:
			em.log.Error("unrecognized event manager operation", "op", op.op)
		}
	}
}

func (em *EventManager) Shutdown() {
	em.ops <- &operation{op: opShutdown}
	<-em.closed
}

// AddEvent stamps and broadcasts an event. Events from a manager that has
// shut down are silently discarded.
func (em *EventManager) AddEvent(evt *EngineEvent) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	select {
	case em.ops <- &operation{op: opSend, evt: evt}:
	case <-em.closed:
	}
}

type Subscriber struct {
	em       *EventManager
	outgoing chan *EngineEvent
	filter   func(*EngineEvent) bool
}

// Subscribe registers a new subscriber; a nil filter receives everything.
func (em *EventManager) Subscribe(filter func(*EngineEvent) bool) *Subscriber {
	sub := &Subscriber{
		em:       em,
		outgoing: make(chan *EngineEvent, em.bufferSize),
		filter:   filter,
	}
	select {
	case em.ops <- &operation{op: opSubscribe, sub: sub}:
	case <-em.closed:
		close(sub.outgoing)
	}
	return sub
}

// Events is the subscriber's channel; closed on Unsubscribe or shutdown.
func (s *Subscriber) Events() <-chan *EngineEvent {
	return s.outgoing
}

func (s *Subscriber) Unsubscribe() {
	select {
	case s.em.ops <- &operation{op: opUnsubscribe, sub: s}:
	case <-s.em.closed:
	}
}
