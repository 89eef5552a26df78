package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/viant/toolbox"

	"github.com/scriptgate/scriptgate/model"
	"github.com/scriptgate/scriptgate/service/dispatch"
	"github.com/scriptgate/scriptgate/service/event"
	"github.com/scriptgate/scriptgate/tracing"
)

// Service drives the script execution pipeline on behalf of the AI tool
// layer: it turns loosely typed tool output into dispatched packages and
// result reports into outward chat messages.
type Service struct {
	dispatcher *dispatch.Service
	events     *event.Service
	config     Config

	mux    sync.RWMutex
	active map[string]*model.ScriptPackage
}

// New creates an orchestrator. The event service is optional; when nil no
// lifecycle events are published.
func New(dispatcher *dispatch.Service, options ...Option) *Service {
	ret := &Service{
		dispatcher: dispatcher,
		config:     DefaultConfig(),
		active:     make(map[string]*model.ScriptPackage),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// SubmitRequest carries the approved tool output down to dispatch.
type SubmitRequest struct {
	// ToolOutput is the raw tool-call payload; "script" is required,
	// "manifest" is optional and may arrive with loosely typed values.
	ToolOutput map[string]interface{}

	SessionID  string
	DeviceID   string
	ApprovalID string
}

// Submit normalises the tool output, derives the dispatch priority from the
// manifest and enqueues the package.
func (s *Service) Submit(ctx context.Context, request *SubmitRequest) (*model.ScriptPackage, error) {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.Submit", "INTERNAL")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	if request == nil {
		err = fmt.Errorf("orchestrator: request was nil")
		return nil, err
	}
	script := toolbox.AsString(request.ToolOutput["script"])
	if script == "" {
		err = fmt.Errorf("orchestrator: tool output has no script")
		return nil, err
	}
	var manifest *model.Manifest
	if manifest, err = s.normalizeManifest(request.ToolOutput["manifest"]); err != nil {
		return nil, err
	}
	priority := model.DerivePriority(manifest)

	pkg, err := s.dispatcher.Enqueue(ctx, &dispatch.EnqueueRequest{
		Script:     script,
		Manifest:   manifest,
		SessionID:  request.SessionID,
		DeviceID:   request.DeviceID,
		ApprovalID: request.ApprovalID,
		Priority:   priority,
	})
	if err != nil {
		return nil, err
	}
	span.WithAttributes(map[string]string{"package.id": pkg.ID, "priority": string(priority)})

	s.mux.Lock()
	s.active[pkg.ID] = pkg
	s.mux.Unlock()

	s.publish(ctx, &ExecutionQueued{Package: pkg, Priority: priority}, pkg)
	return pkg, nil
}

// normalizeManifest converts a loosely typed manifest value into the model
// type. Tool output routinely carries numbers as float64 or strings, the
// converter absorbs both.
func (s *Service) normalizeManifest(value interface{}) (*model.Manifest, error) {
	manifest := &model.Manifest{}
	if value != nil {
		if err := toolbox.DefaultConverter.AssignConverted(manifest, value); err != nil {
			return nil, fmt.Errorf("orchestrator: invalid manifest: %w", err)
		}
	}
	manifest.Normalize()
	return manifest, nil
}

// ReportResult records a device result and renders the outward message for
// the chat transcript.
func (s *Service) ReportResult(ctx context.Context, packageID string, result *model.ExecutionResult) (*Message, error) {
	pkg, err := s.dispatcher.ReportResult(ctx, packageID, result)
	if err != nil {
		return nil, err
	}
	s.refreshCache(pkg)
	s.publish(ctx, &ExecutionCompleted{Package: pkg}, pkg)
	return formatResult(pkg), nil
}

// Cancel forwards the cancellation request. It reports false for packages
// already terminal or unknown.
func (s *Service) Cancel(ctx context.Context, packageID string) (bool, error) {
	ok, err := s.dispatcher.Cancel(ctx, packageID)
	if err != nil || !ok {
		return ok, err
	}
	if pkg, loadErr := s.dispatcher.Status(ctx, packageID); loadErr == nil && pkg != nil {
		s.refreshCache(pkg)
	}
	return true, nil
}

// Status returns the authoritative package record and refreshes the local
// cache from it. The cache is advisory only, the datastore always wins.
func (s *Service) Status(ctx context.Context, packageID string) (*model.ScriptPackage, error) {
	pkg, err := s.dispatcher.Status(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg != nil {
		s.refreshCache(pkg)
	}
	return pkg, nil
}

// Active returns the cached view of a non-terminal package, or nil.
func (s *Service) Active(packageID string) *model.ScriptPackage {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.active[packageID]
}

func (s *Service) refreshCache(pkg *model.ScriptPackage) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if pkg.Status.IsTerminal() {
		delete(s.active, pkg.ID)
		return
	}
	s.active[pkg.ID] = pkg
}

func (s *Service) publish(ctx context.Context, data any, pkg *model.ScriptPackage) {
	if s.events == nil {
		return
	}
	if err := publishEvent(ctx, s.events, data, pkg); err != nil {
		log.Printf("orchestrator: failed to publish %T for %s: %v", data, pkg.ID, err)
	}
}

func publishEvent(ctx context.Context, events *event.Service, data any, pkg *model.ScriptPackage) error {
	eventContext := &event.Context{
		SessionID: pkg.SessionID,
		PackageID: pkg.ID,
		DeviceID:  pkg.DeviceID,
		Service:   "orchestrator",
	}
	switch actual := data.(type) {
	case *ExecutionQueued:
		eventContext.EventType = "execution.queued"
		publisher, err := event.PublisherOf[ExecutionQueued](events)
		if err != nil {
			return err
		}
		return publisher.Publish(ctx, event.NewEvent(eventContext, *actual))
	case *ExecutionCompleted:
		eventContext.EventType = "execution.completed"
		publisher, err := event.PublisherOf[ExecutionCompleted](events)
		if err != nil {
			return err
		}
		return publisher.Publish(ctx, event.NewEvent(eventContext, *actual))
	}
	return fmt.Errorf("unsupported event type: %T", data)
}
