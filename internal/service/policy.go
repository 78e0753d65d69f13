package service

import (
	"github.com/wikigate/moderation-backend/internal/domain"
)

// Capability strings carried in the actor's claims.
const (
	// CapModerate marks a reviewer: may approve, reject and block.
	CapModerate = "moderate"
	// CapSkipEdit lets an actor's edits bypass the queue; also the bar
	// for resolving conflicts via manual merge.
	CapSkipEdit = "skip-moderation"
	// CapSkipUpload lets uploads bypass the queue.
	CapSkipUpload = "skip-upload-moderation"
	// CapSkipMove lets moves bypass the queue; required of the reviewer
	// approving a queued move.
	CapSkipMove = "skip-move-moderation"
	// CapAutomoderated is the broader trusted capability; implies
	// CapSkipEdit for edits only.
	CapAutomoderated = "automoderated"
)

// Actor is the authenticated principal behind a request.
type Actor struct {
	ID           uint64
	Name         string
	Registered   bool
	Capabilities []string

	// Request origin, captured by the front door.
	IP        string
	XFF       string
	UserAgent string
	// AnonToken is the anonymous preload token from the actor's session,
	// empty until one is issued.
	AnonToken string
}

// Has reports whether the actor holds a capability.
func (a Actor) Has(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// ApprovalState answers "is an approval currently in progress".
type ApprovalState interface {
	InProgress() bool
}

// PolicyConfig configures which changes are intercepted.
type PolicyConfig struct {
	// Enabled turns moderation on; false means everything bypasses.
	Enabled bool
	// ModeratedNamespaces, when non-empty, limits moderation to these
	// namespaces.
	ModeratedNamespaces []int
	// ExcludedNamespaces are never moderated; wins over the allow-list.
	ExcludedNamespaces []int
}

// Policy decides whether an actor may bypass the queue.
type Policy struct {
	cfg   PolicyConfig
	state ApprovalState
}

// NewPolicy creates a Policy. state is consulted so that apply paths
// running inside an approval are treated as already vetted.
func NewPolicy(cfg PolicyConfig, state ApprovalState) *Policy {
	return &Policy{cfg: cfg, state: state}
}

var bypassCap = map[domain.ChangeType]string{
	domain.ChangeEdit:   CapSkipEdit,
	domain.ChangeUpload: CapSkipUpload,
	domain.ChangeMove:   CapSkipMove,
}

// CanBypass reports whether this actor's operation skips the queue.
func (p *Policy) CanBypass(actor Actor, op domain.ChangeType, namespaces []int) bool {
	if !p.cfg.Enabled {
		return true
	}
	if p.state != nil && p.state.InProgress() {
		return true
	}
	if actor.Has(bypassCap[op]) {
		return true
	}
	if op == domain.ChangeEdit && actor.Has(CapAutomoderated) {
		return true
	}
	for _, ns := range namespaces {
		if p.namespaceModerated(ns) {
			return false
		}
	}
	// An empty namespace list fails closed: "every affected namespace is
	// unmoderated" is vacuously true over no namespaces, but a caller
	// that cannot say what it touches does not get a bypass.
	return len(namespaces) > 0
}

func (p *Policy) namespaceModerated(ns int) bool {
	for _, ex := range p.cfg.ExcludedNamespaces {
		if ns == ex {
			return false
		}
	}
	if len(p.cfg.ModeratedNamespaces) > 0 {
		for _, m := range p.cfg.ModeratedNamespaces {
			if ns == m {
				return true
			}
		}
		return false
	}
	return true
}
