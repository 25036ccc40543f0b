// Package approval implements the pluggable approval policy consulted by
// the Tool Scheduler's validating -> awaiting_approval transition.
package approval

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Mode selects the scheduler's overall confirmation behavior.
type Mode string

const (
	// ModeAuto never pauses for confirmation.
	ModeAuto Mode = "auto"
	// ModeInteractive requires confirmation for every call not explicitly
	// allow-listed.
	ModeInteractive Mode = "interactive"
	// ModeDefaultOnlyDestructive requires confirmation only for calls the
	// tool definition marks destructive.
	ModeDefaultOnlyDestructive Mode = "default-only-destructive"
)

// Policy configures approval behavior: an overall Mode plus allow/deny/
// require-approval pattern lists that take precedence over it. Patterns
// support exact match, "prefix*", "*suffix", "mcp:*", and the bare
// wildcard "*".
type Policy struct {
	Mode            Mode
	Allowlist       []string
	Denylist        []string
	RequireApproval []string
	RequestTTL      time.Duration
}

// DefaultPolicy requires confirmation for anything not explicitly allowed,
// matching the conservative default a fresh install should ship with.
func DefaultPolicy() *Policy {
	return &Policy{
		Mode:       ModeInteractive,
		RequestTTL: 5 * time.Minute,
	}
}

// Decision is the outcome of evaluating a tool call against a Policy.
type Decision string

const (
	Allowed Decision = "allowed"
	Denied  Decision = "denied"
	Pending Decision = "pending"
)

// Checker evaluates tool calls against a Policy, tracking pending
// approval requests in a pluggable Store.
type Checker struct {
	mu     sync.RWMutex
	policy *Policy
	store  Store
}

// NewChecker builds a Checker with policy, defaulting to DefaultPolicy if
// nil.
func NewChecker(policy *Policy) *Checker {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Checker{policy: policy}
}

// SetStore wires the Store used to persist pending requests.
func (c *Checker) SetStore(store Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
}

// Check evaluates toolName (and whether the tool definition marks it
// destructive) against the policy. Precedence: denylist, allowlist,
// require-approval list, then the overall Mode.
func (c *Checker) Check(toolName string, destructive bool) (Decision, string) {
	c.mu.RLock()
	p := c.policy
	c.mu.RUnlock()

	if matchesPattern(p.Denylist, toolName) {
		return Denied, "tool in denylist"
	}
	if matchesPattern(p.Allowlist, toolName) {
		return Allowed, "tool in allowlist"
	}
	if matchesPattern(p.RequireApproval, toolName) {
		return Pending, "tool requires approval"
	}

	switch p.Mode {
	case ModeAuto:
		return Allowed, "auto-approve mode"
	case ModeDefaultOnlyDestructive:
		if destructive {
			return Pending, "destructive tool requires approval"
		}
		return Allowed, "non-destructive tool"
	case ModeInteractive:
		return Pending, "interactive mode requires approval"
	default:
		return Pending, "default policy"
	}
}

// Request is a pending approval awaiting a human decision.
type Request struct {
	ID         string
	CallID     string
	ToolName   string
	Reason     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Decision   Decision
	DecidedAt  time.Time
}

// Store persists pending Requests. The in-memory MemoryStore below is the
// reference implementation; callers may substitute a durable one.
type Store interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	Update(ctx context.Context, req *Request) error
	ListPending(ctx context.Context) ([]*Request, error)
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

// CreateRequest builds and persists a Request for callID/toolName, using
// the policy's RequestTTL.
func (c *Checker) CreateRequest(ctx context.Context, callID, toolName, reason string) (*Request, error) {
	c.mu.RLock()
	ttl := c.policy.RequestTTL
	store := c.store
	c.mu.RUnlock()
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	req := &Request{
		ID:        callID + "-approval",
		CallID:    callID,
		ToolName:  toolName,
		Reason:    reason,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
		Decision:  Pending,
	}
	if store != nil {
		if err := store.Create(ctx, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (c *Checker) decide(ctx context.Context, id string, decision Decision) error {
	c.mu.RLock()
	store := c.store
	c.mu.RUnlock()
	if store == nil {
		return nil
	}
	req, err := store.Get(ctx, id)
	if err != nil || req == nil {
		return err
	}
	req.Decision = decision
	req.DecidedAt = time.Now()
	return store.Update(ctx, req)
}

// Status returns the current decision recorded for requestID, or Pending if
// no store is wired or the request is unknown.
func (c *Checker) Status(ctx context.Context, requestID string) (Decision, error) {
	c.mu.RLock()
	store := c.store
	c.mu.RUnlock()
	if store == nil {
		return Pending, nil
	}
	req, err := store.Get(ctx, requestID)
	if err != nil {
		return Pending, err
	}
	if req == nil {
		return Pending, nil
	}
	return req.Decision, nil
}

// ListPending returns the requests still awaiting a decision, or nil when
// no store is wired.
func (c *Checker) ListPending(ctx context.Context) ([]*Request, error) {
	c.mu.RLock()
	store := c.store
	c.mu.RUnlock()
	if store == nil {
		return nil, nil
	}
	return store.ListPending(ctx)
}

// Approve marks the pending request requestID as allowed.
func (c *Checker) Approve(ctx context.Context, requestID string) error {
	return c.decide(ctx, requestID, Allowed)
}

// Deny marks the pending request requestID as denied.
func (c *Checker) Deny(ctx context.Context, requestID string) error {
	return c.decide(ctx, requestID, Denied)
}

// matchesPattern reports whether toolName matches any of patterns, each of
// which may be an exact name, "*", "mcp:*", "prefix*", or "*suffix".
func matchesPattern(patterns []string, toolName string) bool {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if pattern == "*" {
			return true
		}
		if pattern == toolName {
			return true
		}
		if pattern == "mcp:*" && strings.HasPrefix(toolName, "mcp:") {
			return true
		}
		if len(pattern) > 1 && pattern[len(pattern)-1] == '*' {
			if strings.HasPrefix(toolName, pattern[:len(pattern)-1]) {
				return true
			}
		}
		if len(pattern) > 1 && pattern[0] == '*' {
			if strings.HasSuffix(toolName, pattern[1:]) {
				return true
			}
		}
	}
	return false
}
