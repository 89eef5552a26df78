package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/scriptgate/scriptgate/internal/arena"
	"github.com/scriptgate/scriptgate/internal/clock"
	"github.com/scriptgate/scriptgate/internal/idgen"
	"github.com/scriptgate/scriptgate/service/approval"
	"github.com/scriptgate/scriptgate/service/dao"
	"github.com/scriptgate/scriptgate/service/dao/store"
	"github.com/scriptgate/scriptgate/service/messaging"
	qmem "github.com/scriptgate/scriptgate/service/messaging/memory"
)

// Config tunes the engine.
type Config struct {
	// DefaultTimeout bounds how long a pending approval waits for a human
	// decision when the request does not carry its own timeout.
	DefaultTimeout time.Duration

	// DeniedTools are hard-denied regardless of customer policy.
	DeniedTools []string
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{DefaultTimeout: 2 * time.Minute}
}

type outcome struct {
	decision *approval.Decision
	err      error
}

// pendingApproval is the single in-memory entry per outstanding approval.
// Whichever path removes it from the map first – human decision, timeout or
// caller cancellation – owns the resolution; the others observe "not found"
// and become no-ops.
type pendingApproval struct {
	request *approval.Request
	done    chan outcome
}

type service struct {
	config   Config
	provider approval.PolicyProvider
	denied   map[string]bool

	policyMu    sync.RWMutex
	policyCache map[string]map[string]*approval.Policy

	pendingMu sync.Mutex
	pending   map[string]*pendingApproval
	timers    *arena.Arena[string]

	auditDAO    dao.Service[string, approval.AuditRecord]
	denialDAO   dao.Service[string, approval.DenialRecord]
	decisionDAO dao.Service[string, approval.Decision]

	events messaging.Queue[approval.Event]
}

func auditKey(r *approval.AuditRecord) string   { return r.ID }
func denialKey(r *approval.DenialRecord) string { return r.ID }
func decisionKey(d *approval.Decision) string   { return d.ID }

// New creates an approval engine evaluating the given policy provider.
func New(provider approval.PolicyProvider, options ...Option) approval.Service {
	ret := &service{
		config:      DefaultConfig(),
		provider:    provider,
		policyCache: make(map[string]map[string]*approval.Policy),
		pending:     make(map[string]*pendingApproval),
		timers:      arena.New[string](),
		auditDAO:    store.NewMemoryStore[string, approval.AuditRecord](auditKey),
		denialDAO:   store.NewMemoryStore[string, approval.DenialRecord](denialKey),
		decisionDAO: store.NewMemoryStore[string, approval.Decision](decisionKey),
		events:      qmem.NewQueue[approval.Event](qmem.DefaultConfig()),
	}
	for _, option := range options {
		option(ret)
	}
	ret.denied = make(map[string]bool, len(ret.config.DeniedTools))
	for _, tool := range ret.config.DeniedTools {
		ret.denied[tool] = true
	}
	return ret
}

func (s *service) RequestApproval(ctx context.Context, request *approval.Request) (*approval.Decision, error) {
	if request == nil || request.ToolName == "" {
		return nil, errors.New("approval: invalid request")
	}
	if request.ID == "" {
		request.ID = idgen.New()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = clock.Now()
	}
	request.CreatedAtISO = clock.ISO(request.CreatedAt)

	if s.denied[request.ToolName] {
		return s.deny(ctx, request, fmt.Sprintf("tool %s is on the denied list", request.ToolName))
	}
	policy, err := s.policyFor(ctx, request.CustomerID, request.ToolName)
	if err != nil {
		return nil, err
	}
	switch {
	case policy == nil:
		return s.deny(ctx, request, fmt.Sprintf("tool %s is unknown to the policy catalog", request.ToolName))
	case policy.AutoApproves(request.RiskLevel):
		return s.autoApprove(ctx, request)
	case !policy.AutoApprove && !policy.RequiresApproval:
		return s.deny(ctx, request, fmt.Sprintf("tool %s is explicitly denied by policy", request.ToolName))
	}
	return s.awaitDecision(ctx, request)
}

// awaitDecision parks the request until a human decision, the timeout or ctx
// cancellation resolves it.
func (s *service) awaitDecision(ctx context.Context, request *approval.Request) (*approval.Decision, error) {
	// The durable record that approval was requested must exist before
	// anything else happens – without it the operation cannot proceed.
	if err := s.auditDAO.Save(ctx, s.newAudit(request, approval.AuditRequested, "")); err != nil {
		return nil, fmt.Errorf("approval: failed to persist request audit record: %w", err)
	}

	entry := &pendingApproval{request: request, done: make(chan outcome, 1)}
	s.pendingMu.Lock()
	s.pending[request.ID] = entry
	s.pendingMu.Unlock()

	timeout := s.config.DefaultTimeout
	if request.TimeoutSec > 0 {
		timeout = time.Duration(request.TimeoutSec) * time.Second
	}
	id := request.ID
	s.timers.Arm(id, timeout, func() { s.expire(id) })

	s.publish(ctx, &approval.Event{Topic: approval.TopicRequestCreated, Data: request})

	select {
	case out := <-entry.done:
		return out.decision, out.err
	case <-ctx.Done():
		if s.take(id) != nil {
			s.timers.Resolve(id)
		}
		return nil, ctx.Err()
	}
}

func (s *service) Decide(ctx context.Context, id string, approved bool, reason string) (*approval.Decision, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	entry := s.take(id)
	if entry == nil {
		if recorded, _ := s.decisionDAO.Load(ctx, id); recorded != nil {
			return nil, approval.ErrAlreadyDecided
		}
		return nil, approval.ErrNotFound
	}
	s.timers.Resolve(id)

	decision := &approval.Decision{
		ID:        id,
		Approved:  approved,
		Reason:    reason,
		DecidedAt: clock.Now(),
	}
	verdict := approval.AuditDenied
	if approved {
		verdict = approval.AuditApproved
	}
	// The audit row is inserted before the caller's wait resolves.
	if err := s.auditDAO.Save(ctx, s.newAudit(entry.request, verdict, reason)); err != nil {
		err = fmt.Errorf("approval: failed to persist decision audit record: %w", err)
		entry.done <- outcome{err: err}
		return nil, err
	}
	_ = s.decisionDAO.Save(ctx, decision)
	s.publish(ctx, &approval.Event{Topic: approval.TopicDecisionCreated, Data: decision})

	entry.done <- outcome{decision: decision}
	return decision, nil
}

// expire fires when the approval timer wins the race. Persistence here is
// best effort: a failed status update is logged but never changes the
// caller-visible timeout outcome.
func (s *service) expire(id string) {
	entry := s.take(id)
	if entry == nil {
		return
	}
	ctx := context.Background()
	if err := s.auditDAO.Save(ctx, s.newAudit(entry.request, approval.AuditTimeout, "no decision before timeout")); err != nil {
		log.Printf("approval: failed to persist timeout audit record for %s: %v", id, err)
	}
	decision := &approval.Decision{ID: id, Approved: false, Reason: "timeout", DecidedAt: clock.Now()}
	if err := s.decisionDAO.Save(ctx, decision); err != nil {
		log.Printf("approval: failed to persist timeout decision for %s: %v", id, err)
	}
	s.publish(ctx, &approval.Event{Topic: approval.TopicRequestExpired, Data: entry.request})

	entry.done <- outcome{err: approval.ErrTimeout}
}

// deny persists the denial record and resolves immediately. A denial that
// cannot be recorded is a hard failure – the caller must not believe an
// unrecorded operation happened.
func (s *service) deny(ctx context.Context, request *approval.Request, reason string) (*approval.Decision, error) {
	record := &approval.DenialRecord{
		ID:           idgen.New(),
		SessionID:    request.SessionID,
		CustomerID:   request.CustomerID,
		ToolName:     request.ToolName,
		Input:        request.Input,
		Reason:       reason,
		RiskLevel:    request.RiskLevel,
		CreatedAtMs:  clock.Now().UnixMilli(),
		CreatedAtISO: clock.ISO(clock.Now()),
	}
	if err := s.denialDAO.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("approval: failed to persist denial record: %w", err)
	}
	decision := &approval.Decision{
		ID:        request.ID,
		Approved:  false,
		Reason:    reason,
		Auto:      true,
		DecidedAt: clock.Now(),
	}
	_ = s.decisionDAO.Save(ctx, decision)
	s.publish(ctx, &approval.Event{Topic: approval.TopicDecisionCreated, Data: decision})
	return decision, nil
}

func (s *service) autoApprove(ctx context.Context, request *approval.Request) (*approval.Decision, error) {
	if err := s.auditDAO.Save(ctx, s.newAudit(request, approval.AuditApproved, "auto-approved by policy")); err != nil {
		return nil, fmt.Errorf("approval: failed to persist auto-approval audit record: %w", err)
	}
	decision := &approval.Decision{
		ID:        request.ID,
		Approved:  true,
		Reason:    "auto-approved by policy",
		Auto:      true,
		DecidedAt: clock.Now(),
	}
	_ = s.decisionDAO.Save(ctx, decision)
	s.publish(ctx, &approval.Event{Topic: approval.TopicDecisionCreated, Data: decision})
	return decision, nil
}

func (s *service) ListPending(_ context.Context) ([]*approval.Request, error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	out := make([]*approval.Request, 0, len(s.pending))
	for _, entry := range s.pending {
		out = append(out, entry.request)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *service) Decision(ctx context.Context, id string) (*approval.Decision, error) {
	return s.decisionDAO.Load(ctx, id)
}

func (s *service) RefreshPolicies() {
	s.policyMu.Lock()
	s.policyCache = make(map[string]map[string]*approval.Policy)
	s.policyMu.Unlock()
}

func (s *service) Queue() messaging.Queue[approval.Event] { return s.events }

// take performs the check-and-delete on the pending map. The first caller per
// id wins the resolution race; later callers get nil.
func (s *service) take(id string) *pendingApproval {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	entry, ok := s.pending[id]
	if !ok {
		return nil
	}
	delete(s.pending, id)
	return entry
}

// policyFor loads the customer's catalog on first use and caches it.
func (s *service) policyFor(ctx context.Context, customerID, toolName string) (*approval.Policy, error) {
	s.policyMu.RLock()
	policies, ok := s.policyCache[customerID]
	s.policyMu.RUnlock()
	if !ok {
		var err error
		if policies, err = s.provider.LoadPolicies(ctx, customerID); err != nil {
			return nil, fmt.Errorf("approval: failed to load policies for customer %s: %w", customerID, err)
		}
		s.policyMu.Lock()
		s.policyCache[customerID] = policies
		s.policyMu.Unlock()
	}
	return policies[toolName], nil
}

func (s *service) newAudit(request *approval.Request, decision, reason string) *approval.AuditRecord {
	now := clock.Now()
	return &approval.AuditRecord{
		ID:           idgen.New(),
		RequestID:    request.ID,
		SessionID:    request.SessionID,
		CustomerID:   request.CustomerID,
		ToolName:     request.ToolName,
		Input:        request.Input,
		Decision:     decision,
		Reason:       reason,
		RiskLevel:    request.RiskLevel,
		CreatedAtMs:  now.UnixMilli(),
		CreatedAtISO: clock.ISO(now),
	}
}

func (s *service) publish(ctx context.Context, event *approval.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		log.Printf("approval: failed to publish %s event: %v", event.Topic, err)
	}
}

var _ approval.Service = (*service)(nil)
