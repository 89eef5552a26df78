package memory

import (
	"github.com/scriptgate/scriptgate/service/approval"
	"github.com/scriptgate/scriptgate/service/dao"
	"github.com/scriptgate/scriptgate/service/messaging"
)

type Option func(*service)

// WithConfig overrides the default engine configuration.
func WithConfig(config Config) Option {
	return func(s *service) { s.config = config }
}

// WithAuditDAO swaps the audit record store, e.g. for the external datastore.
func WithAuditDAO(dao dao.Service[string, approval.AuditRecord]) Option {
	return func(s *service) { s.auditDAO = dao }
}

// WithDenialDAO swaps the denial record store.
func WithDenialDAO(dao dao.Service[string, approval.DenialRecord]) Option {
	return func(s *service) { s.denialDAO = dao }
}

// WithDecisionDAO swaps the decision store.
func WithDecisionDAO(dao dao.Service[string, approval.Decision]) Option {
	return func(s *service) { s.decisionDAO = dao }
}

// WithEventQueue attaches the broadcast queue connected approvers consume.
func WithEventQueue(queue messaging.Queue[approval.Event]) Option {
	return func(s *service) { s.events = queue }
}
