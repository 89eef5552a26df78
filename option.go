package scriptgate

import (
	"github.com/viant/afs"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/scriptgate/scriptgate/service/approval"
	"github.com/scriptgate/scriptgate/service/dispatch"
	"github.com/scriptgate/scriptgate/service/event"
	"github.com/scriptgate/scriptgate/service/signer"
	"github.com/scriptgate/scriptgate/tracing"
)

type Option func(s *Service)

// WithConfig replaces the default configuration.
func WithConfig(config Config) Option {
	return func(s *Service) { s.config = config }
}

// WithAfs sets the file system service used for configuration and catalogs.
func WithAfs(fs afs.Service) Option {
	return func(s *Service) { s.fs = fs }
}

// WithSigner sets the signing service.
func WithSigner(svc signer.Service) Option {
	return func(s *Service) { s.signer = svc }
}

// WithPolicyProvider sets the approval policy provider.
func WithPolicyProvider(provider approval.PolicyProvider) Option {
	return func(s *Service) { s.policyProvider = provider }
}

// WithApprovalService sets the approval service.
func WithApprovalService(svc approval.Service) Option {
	return func(s *Service) { s.approvalService = svc }
}

// WithEventService sets the event service. The caller owns consuming the
// published queues; an event type nobody listens to eventually fills its
// buffer and blocks publishing.
func WithEventService(service *event.Service) Option {
	return func(s *Service) { s.eventService = service }
}

// WithDispatchOptions appends options passed to the dispatch service.
func WithDispatchOptions(options ...dispatch.Option) Option {
	return func(s *Service) {
		s.dispatchOptions = append(s.dispatchOptions, options...)
	}
}

// WithTracing configures OpenTelemetry tracing with the stdout exporter. If
// outputFile is empty traces go to stdout. Safe to call multiple times; the
// first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, for example OTLP, Jaeger or Zipkin.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
