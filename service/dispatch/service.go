package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/scriptgate/scriptgate/internal/arena"
	"github.com/scriptgate/scriptgate/internal/clock"
	"github.com/scriptgate/scriptgate/internal/redact"
	"github.com/scriptgate/scriptgate/model"
	"github.com/scriptgate/scriptgate/service/dao"
	"github.com/scriptgate/scriptgate/service/dao/criteria"
	"github.com/scriptgate/scriptgate/service/dao/store"
	"github.com/scriptgate/scriptgate/service/messaging"
	qmem "github.com/scriptgate/scriptgate/service/messaging/memory"
	"github.com/scriptgate/scriptgate/service/packager"
	"github.com/scriptgate/scriptgate/tracing"
)

// Config tunes the dispatch service.
type Config struct {
	// CancellationGrace bounds how long a cancellation waits for a device
	// acknowledgment before the transition is forced.
	CancellationGrace time.Duration

	// ReconcileInterval drives the periodic datastore/queue reconciliation
	// sweep. Zero disables the sweep.
	ReconcileInterval time.Duration
}

// DefaultConfig returns the standard dispatch configuration.
func DefaultConfig() Config {
	return Config{CancellationGrace: 30 * time.Second}
}

// Cancellation reasons persisted with the status record.
const (
	reasonBeforeExecution = "cancelled_before_execution"
	reasonDeviceAck       = "device_acknowledged"
	reasonNoDeviceAck     = "timeout_no_device_ack"
	reasonLostFromQueue   = "lost_from_queue"
)

// EnqueueRequest carries everything needed to package and dispatch a script.
type EnqueueRequest struct {
	Script     string
	Manifest   *model.Manifest
	SessionID  string
	DeviceID   string
	ApprovalID string
	Priority   model.Priority
}

// Service implements the execution queue and dispatch pipeline.
type Service struct {
	config     Config
	packager   *packager.Service
	packageDAO dao.Service[string, model.ScriptPackage]
	queue      messaging.OrderedList[QueueItem]

	commandsMu sync.Mutex
	commands   map[string]messaging.Queue[Command]
	newChannel func(deviceID string) messaging.Queue[Command]

	grace *arena.Arena[string]

	shutdownCh chan struct{}
	shutdown   sync.Once
}

func packageKey(p *model.ScriptPackage) string { return p.ID }

func matchPackage(p *model.ScriptPackage, parameters []*dao.Parameter) bool {
	return criteria.Match(parameters, func(name string) string {
		switch name {
		case "DeviceID":
			return p.DeviceID
		case "Status":
			return string(p.Status)
		}
		return ""
	})
}

// New creates a dispatch service around the given packager.
func New(packagerService *packager.Service, options ...Option) *Service {
	ret := &Service{
		config:     DefaultConfig(),
		packager:   packagerService,
		commands:   make(map[string]messaging.Queue[Command]),
		grace:      arena.New[string](),
		shutdownCh: make(chan struct{}),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.packageDAO == nil {
		ret.packageDAO = store.NewMemoryStore[string, model.ScriptPackage](packageKey).
			WithMatcher(matchPackage)
	}
	if ret.queue == nil {
		ret.queue = qmem.NewList[QueueItem]()
	}
	if ret.newChannel == nil {
		ret.newChannel = func(string) messaging.Queue[Command] {
			return qmem.NewQueue[Command](qmem.DefaultConfig())
		}
	}
	return ret
}

// Start launches the reconciliation sweep when configured.
func (s *Service) Start(ctx context.Context) {
	if s.config.ReconcileInterval > 0 {
		go s.reconcileLoop(ctx)
	}
}

// Shutdown stops background work.
func (s *Service) Shutdown() {
	s.shutdown.Do(func() { close(s.shutdownCh) })
}

// Enqueue packages the script and dispatches it: persist the package row,
// push it onto the device's ordered queue (head for high priority) and
// publish an EXECUTE_SCRIPT notification. Packaging or persistence failures
// abort the whole operation; when push and notification both fail the row is
// marked failed so the package never lingers invisible and undispatchable.
func (s *Service) Enqueue(ctx context.Context, request *EnqueueRequest) (*model.ScriptPackage, error) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.Enqueue", "INTERNAL")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	if request == nil || request.DeviceID == "" {
		err = fmt.Errorf("dispatch: invalid enqueue request")
		return nil, err
	}
	var pkg *model.ScriptPackage
	if pkg, err = s.packager.Package(&packager.Request{
		Script:     request.Script,
		Manifest:   request.Manifest,
		SessionID:  request.SessionID,
		DeviceID:   request.DeviceID,
		ApprovalID: request.ApprovalID,
	}); err != nil {
		return nil, err
	}
	span.WithAttributes(map[string]string{"package.id": pkg.ID, "device.id": pkg.DeviceID})

	pkg.Status = model.StatusQueued
	if err = s.packageDAO.Save(ctx, pkg); err != nil {
		err = fmt.Errorf("dispatch: failed to persist package %s: %w", pkg.ID, err)
		return nil, err
	}

	item := &QueueItem{
		PackageID:  pkg.ID,
		Priority:   string(request.Priority),
		EnqueuedAt: clock.ISO(clock.Now()),
	}
	pushErr := s.queue.Push(ctx, request.DeviceID, item, request.Priority == model.PriorityHigh)
	notifyErr := s.notify(ctx, request.DeviceID, &Command{Type: CommandExecuteScript, PackageID: pkg.ID})

	if pushErr != nil && notifyErr != nil {
		pkg.Status = model.StatusFailed
		pkg.ExecutionResult = &model.ExecutionResult{
			ExitCode: -1,
			Error:    "enqueue failed: " + pushErr.Error() + "; " + notifyErr.Error(),
		}
		if saveErr := s.packageDAO.Save(ctx, pkg); saveErr != nil {
			log.Printf("dispatch: failed to mark package %s failed: %v", pkg.ID, saveErr)
		}
		err = fmt.Errorf("%w: push: %v, notify: %v", ErrNotDispatchable, pushErr, notifyErr)
		return nil, err
	}
	if pushErr != nil {
		log.Printf("dispatch: queue push failed for package %s (notification delivered): %v", pkg.ID, pushErr)
	}
	if notifyErr != nil {
		log.Printf("dispatch: device notification failed for package %s (package queued): %v", pkg.ID, notifyErr)
	}
	return pkg, nil
}

// Fetch hands the device its next package. The package integrity is checked
// before any transition: checksum first, then signature. Either failure is
// fatal for this fetch and is not retried; the reconciliation sweep later
// marks the record failed since it left the queue unexecuted.
func (s *Service) Fetch(ctx context.Context, deviceID string) (*model.ScriptPackage, error) {
	for {
		item, err := s.queue.Pop(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, nil
		}
		pkg, err := s.packageDAO.Load(ctx, item.PackageID)
		if err != nil {
			return nil, err
		}
		if pkg == nil || pkg.Status != model.StatusQueued {
			// Cancelled or superseded between push and fetch; skip.
			continue
		}
		if !s.packager.ValidateChecksum(pkg) {
			return nil, fmt.Errorf("%w: package %s", ErrChecksumMismatch, pkg.ID)
		}
		if pkg.Signature != "" && !s.packager.VerifyPackage(pkg) {
			return nil, fmt.Errorf("%w: package %s", ErrSignatureInvalid, pkg.ID)
		}
		pkg.Status = model.StatusExecuting
		pkg.ExecutedAt = model.NewISOTime(clock.Now())
		if err = s.packageDAO.Save(ctx, pkg); err != nil {
			return nil, fmt.Errorf("dispatch: failed to mark package %s executing: %w", pkg.ID, err)
		}
		return pkg, nil
	}
}

// ReportResult records the device-reported outcome. Output is sanitised and
// truncated before persistence so raw credentials never reach the datastore.
func (s *Service) ReportResult(ctx context.Context, packageID string, result *model.ExecutionResult) (*model.ScriptPackage, error) {
	pkg, err := s.packageDAO.Load(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, packageID)
	}
	if pkg.Status.IsTerminal() {
		// A late report, e.g. after a forced cancellation, must not
		// resurrect the record.
		return nil, fmt.Errorf("%w: %s is %s", ErrTerminalStatus, packageID, pkg.Status)
	}
	result = s.packager.ProcessResult(result)
	result.Stdout = redact.Output(result.Stdout)
	result.Stderr = redact.Output(result.Stderr)

	// A result racing a cancellation grace timer: first writer wins.
	s.grace.Resolve(packageID)

	pkg.ExecutionResult = result
	if result.ExitCode == 0 {
		pkg.Status = model.StatusCompleted
	} else {
		pkg.Status = model.StatusFailed
	}
	if err = s.packageDAO.Save(ctx, pkg); err != nil {
		return nil, fmt.Errorf("dispatch: failed to persist result for %s: %w", packageID, err)
	}
	return pkg, nil
}

// Cancel initiates cancellation. A still-queued package is removed from the
// device queue and cancelled synchronously. An executing package enters the
// two-phase protocol: mark, notify the device, arm the grace timer. The
// return value reports whether a cancellation attempt was initiated.
func (s *Service) Cancel(ctx context.Context, packageID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.Cancel", "INTERNAL")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	pkg, err := s.packageDAO.Load(ctx, packageID)
	if err != nil {
		return false, err
	}
	if pkg == nil || pkg.Status.IsTerminal() {
		return false, nil
	}
	now := clock.Now()
	switch pkg.Status {
	case model.StatusQueued:
		if _, err = s.queue.Remove(ctx, pkg.DeviceID, func(item *QueueItem) bool {
			return item.PackageID == packageID
		}); err != nil {
			return false, err
		}
		pkg.Status = model.StatusCancelled
		pkg.CancellationConfirmedAt = model.NewISOTime(now)
		pkg.CancellationReason = reasonBeforeExecution
		if err = s.packageDAO.Save(ctx, pkg); err != nil {
			return false, fmt.Errorf("dispatch: failed to persist cancellation of %s: %w", packageID, err)
		}
		return true, nil

	case model.StatusExecuting:
		pkg.Status = model.StatusCancellationRequested
		pkg.CancellationRequestedAt = model.NewISOTime(now)
		if err = s.packageDAO.Save(ctx, pkg); err != nil {
			return false, fmt.Errorf("dispatch: failed to persist cancellation request for %s: %w", packageID, err)
		}
		if notifyErr := s.notify(ctx, pkg.DeviceID, &Command{
			Type:        CommandCancelExecution,
			PackageID:   packageID,
			RequestedAt: clock.ISO(now),
		}); notifyErr != nil {
			log.Printf("dispatch: failed to publish cancellation for %s: %v", packageID, notifyErr)
		}
		s.grace.Arm(packageID, s.config.CancellationGrace, func() { s.forceCancel(packageID) })
		return true, nil

	case model.StatusCancellationRequested:
		// Already in flight; the armed grace timer owns the outcome.
		return true, nil
	}
	return false, nil
}

// AcknowledgeCancellation is called when the device confirms it stopped the
// execution. Losing the race against the grace timer is harmless, the
// package is already cancelled.
func (s *Service) AcknowledgeCancellation(ctx context.Context, packageID string) error {
	if !s.grace.Resolve(packageID) {
		return nil
	}
	pkg, err := s.packageDAO.Load(ctx, packageID)
	if err != nil || pkg == nil {
		return err
	}
	pkg.Status = model.StatusCancelled
	pkg.CancellationConfirmedAt = model.NewISOTime(clock.Now())
	pkg.CancellationReason = reasonDeviceAck
	return s.packageDAO.Save(ctx, pkg)
}

// forceCancel runs when the grace timer wins: the device never acknowledged.
// Persistence is best effort; the forced transition itself must happen.
func (s *Service) forceCancel(packageID string) {
	ctx := context.Background()
	pkg, err := s.packageDAO.Load(ctx, packageID)
	if err != nil || pkg == nil {
		log.Printf("dispatch: forced cancellation could not load package %s: %v", packageID, err)
		return
	}
	if pkg.Status != model.StatusCancellationRequested {
		return
	}
	pkg.Status = model.StatusCancelled
	pkg.CancellationConfirmedAt = model.NewISOTime(clock.Now())
	pkg.CancellationReason = reasonNoDeviceAck
	if err := s.packageDAO.Save(ctx, pkg); err != nil {
		log.Printf("dispatch: failed to persist forced cancellation of %s: %v", packageID, err)
	}
}

// Position returns the 1-based position of the package in its device queue,
// or 0 when it is no longer queued. The linear scan is an accepted
// bounded-scale trade-off; it stays comfortable under ~100 items per device.
func (s *Service) Position(ctx context.Context, packageID string) (int, error) {
	pkg, err := s.packageDAO.Load(ctx, packageID)
	if err != nil {
		return 0, err
	}
	if pkg == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, packageID)
	}
	items, err := s.queue.Items(ctx, pkg.DeviceID)
	if err != nil {
		return 0, err
	}
	for i, item := range items {
		if item.PackageID == packageID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// Status loads the authoritative package record.
func (s *Service) Status(ctx context.Context, packageID string) (*model.ScriptPackage, error) {
	return s.packageDAO.Load(ctx, packageID)
}

// Commands returns the device's command channel, creating it on first use.
func (s *Service) Commands(deviceID string) messaging.Queue[Command] {
	s.commandsMu.Lock()
	defer s.commandsMu.Unlock()
	channel, ok := s.commands[deviceID]
	if !ok {
		channel = s.newChannel(deviceID)
		s.commands[deviceID] = channel
	}
	return channel
}

func (s *Service) notify(ctx context.Context, deviceID string, command *Command) error {
	return s.Commands(deviceID).Publish(ctx, command)
}
