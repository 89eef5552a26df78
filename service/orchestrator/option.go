package orchestrator

import "github.com/scriptgate/scriptgate/service/event"

type Option func(s *Service)

// WithConfig overrides the default streaming configuration.
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithEventService enables lifecycle event publication.
func WithEventService(events *event.Service) Option {
	return func(s *Service) {
		s.events = events
	}
}
