package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scriptgate/scriptgate/model"
	"github.com/scriptgate/scriptgate/service/messaging"
	"github.com/scriptgate/scriptgate/service/packager"
	"github.com/scriptgate/scriptgate/service/signer"
)

func newTestService(t *testing.T, options ...Option) *Service {
	signerService, err := signer.New(context.Background(), &signer.Config{Environment: "test"})
	assert.NoError(t, err)
	return New(packager.New(signerService), options...)
}

func enqueue(t *testing.T, svc *Service, deviceID string, priority model.Priority) *model.ScriptPackage {
	pkg, err := svc.Enqueue(context.Background(), &EnqueueRequest{
		Script:   "echo hi",
		Manifest: &model.Manifest{TimeoutSec: 60},
		DeviceID: deviceID,
		Priority: priority,
	})
	assert.NoError(t, err)
	return pkg
}

func TestEnqueueFetchReport(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pkg := enqueue(t, svc, "dev-1", model.PriorityMedium)
	assert.Equal(t, model.StatusQueued, pkg.Status)
	assert.NotEmpty(t, pkg.Signature)

	// Enqueue publishes an EXECUTE_SCRIPT command.
	consumeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	message, err := svc.Commands("dev-1").Consume(consumeCtx)
	assert.NoError(t, err)
	assert.Equal(t, CommandExecuteScript, message.T().Type)
	assert.Equal(t, pkg.ID, message.T().PackageID)
	assert.NoError(t, message.Ack())

	fetched, err := svc.Fetch(ctx, "dev-1")
	assert.NoError(t, err)
	assert.NotNil(t, fetched)
	assert.Equal(t, pkg.ID, fetched.ID)
	assert.Equal(t, model.StatusExecuting, fetched.Status)
	assert.NotNil(t, fetched.ExecutedAt)

	// Queue drained.
	next, err := svc.Fetch(ctx, "dev-1")
	assert.NoError(t, err)
	assert.Nil(t, next)

	reported, err := svc.ReportResult(ctx, pkg.ID, &model.ExecutionResult{
		ExitCode: 0,
		Stdout:   "connected to 10.1.2.3 as admin@example.com",
	})
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, reported.Status)
	assert.Equal(t, "connected to 10.1.*.* as <EMAIL_REDACTED>", reported.ExecutionResult.Stdout)
	assert.NotNil(t, reported.ExecutionResult.CompletedAt)
}

func TestReportFailure(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pkg := enqueue(t, svc, "dev-1", model.PriorityMedium)
	_, err := svc.Fetch(ctx, "dev-1")
	assert.NoError(t, err)

	reported, err := svc.ReportResult(ctx, pkg.ID, &model.ExecutionResult{ExitCode: 3, Stderr: "boom"})
	assert.NoError(t, err)
	assert.Equal(t, model.StatusFailed, reported.Status)
	assert.Equal(t, "script exited with code 3", reported.ExecutionResult.Error)
}

func TestReportResultUnknownPackage(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ReportResult(context.Background(), "missing", &model.ExecutionResult{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHighPriorityJumpsQueue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first := enqueue(t, svc, "dev-1", model.PriorityMedium)
	second := enqueue(t, svc, "dev-1", model.PriorityHigh)

	position, err := svc.Position(ctx, second.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, position)

	position, err = svc.Position(ctx, first.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, position)

	fetched, err := svc.Fetch(ctx, "dev-1")
	assert.NoError(t, err)
	assert.Equal(t, second.ID, fetched.ID)

	// An executing package reports position 0.
	position, err = svc.Position(ctx, second.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, position)
}

func TestFetchDetectsTampering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pkg := enqueue(t, svc, "dev-1", model.PriorityMedium)

	stored, err := svc.packageDAO.Load(ctx, pkg.ID)
	assert.NoError(t, err)
	stored.Script = base64.StdEncoding.EncodeToString([]byte("echo pwned"))
	assert.NoError(t, svc.packageDAO.Save(ctx, stored))

	_, err = svc.Fetch(ctx, "dev-1")
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestCancelQueued(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pkg := enqueue(t, svc, "dev-1", model.PriorityMedium)

	ok, err := svc.Cancel(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.True(t, ok)

	cancelled, err := svc.Status(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, "cancelled_before_execution", cancelled.CancellationReason)
	assert.NotNil(t, cancelled.CancellationConfirmedAt)

	// No grace timer for a synchronous cancellation.
	assert.Equal(t, 0, svc.grace.Len())

	// The queue entry is gone.
	fetched, err := svc.Fetch(ctx, "dev-1")
	assert.NoError(t, err)
	assert.Nil(t, fetched)
}

func TestCancelExecutingWithAck(t *testing.T) {
	config := DefaultConfig()
	config.CancellationGrace = 200 * time.Millisecond
	svc := newTestService(t, WithConfig(config))
	ctx := context.Background()

	pkg := enqueue(t, svc, "dev-1", model.PriorityMedium)
	_, err := svc.Fetch(ctx, "dev-1")
	assert.NoError(t, err)

	ok, err := svc.Cancel(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.True(t, ok)

	requested, err := svc.Status(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCancellationRequested, requested.Status)
	assert.NotNil(t, requested.CancellationRequestedAt)

	// A second cancel while one is in flight is a no-op success.
	ok, err = svc.Cancel(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, svc.AcknowledgeCancellation(ctx, pkg.ID))

	confirmed, err := svc.Status(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, confirmed.Status)
	assert.Equal(t, "device_acknowledged", confirmed.CancellationReason)
	assert.Equal(t, 0, svc.grace.Len())
}

func TestCancelExecutingWithoutAck(t *testing.T) {
	config := DefaultConfig()
	config.CancellationGrace = 30 * time.Millisecond
	svc := newTestService(t, WithConfig(config))
	ctx := context.Background()

	pkg := enqueue(t, svc, "dev-1", model.PriorityMedium)
	_, err := svc.Fetch(ctx, "dev-1")
	assert.NoError(t, err)

	ok, err := svc.Cancel(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		current, _ := svc.Status(ctx, pkg.ID)
		return current.Status == model.StatusCancelled
	}, time.Second, 10*time.Millisecond)

	forced, err := svc.Status(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.Equal(t, "timeout_no_device_ack", forced.CancellationReason)

	// A late device ack is a harmless no-op.
	assert.NoError(t, svc.AcknowledgeCancellation(ctx, pkg.ID))
	late, _ := svc.Status(ctx, pkg.ID)
	assert.Equal(t, "timeout_no_device_ack", late.CancellationReason)
}

func TestLateResultAfterForcedCancel(t *testing.T) {
	config := DefaultConfig()
	config.CancellationGrace = 30 * time.Millisecond
	svc := newTestService(t, WithConfig(config))
	ctx := context.Background()

	pkg := enqueue(t, svc, "dev-1", model.PriorityMedium)
	_, err := svc.Fetch(ctx, "dev-1")
	assert.NoError(t, err)

	ok, err := svc.Cancel(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		current, _ := svc.Status(ctx, pkg.ID)
		return current.Status == model.StatusCancelled
	}, time.Second, 10*time.Millisecond)

	// The device finally reports success, long after the grace timer forced
	// the cancellation. The terminal record must stay cancelled.
	_, err = svc.ReportResult(ctx, pkg.ID, &model.ExecutionResult{ExitCode: 0})
	assert.ErrorIs(t, err, ErrTerminalStatus)

	final, err := svc.Status(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, final.Status)
	assert.Equal(t, "timeout_no_device_ack", final.CancellationReason)
	assert.Nil(t, final.ExecutionResult)
}

func TestResultBeatsGraceTimer(t *testing.T) {
	config := DefaultConfig()
	config.CancellationGrace = 50 * time.Millisecond
	svc := newTestService(t, WithConfig(config))
	ctx := context.Background()

	pkg := enqueue(t, svc, "dev-1", model.PriorityMedium)
	_, err := svc.Fetch(ctx, "dev-1")
	assert.NoError(t, err)

	ok, err := svc.Cancel(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.True(t, ok)

	reported, err := svc.ReportResult(ctx, pkg.ID, &model.ExecutionResult{ExitCode: 0})
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, reported.Status)

	// The disarmed grace timer must not flip the status later.
	time.Sleep(100 * time.Millisecond)
	final, _ := svc.Status(ctx, pkg.ID)
	assert.Equal(t, model.StatusCompleted, final.Status)
}

func TestCancelTerminalOrUnknown(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ok, err := svc.Cancel(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	pkg := enqueue(t, svc, "dev-1", model.PriorityMedium)
	_, err = svc.Fetch(ctx, "dev-1")
	assert.NoError(t, err)
	_, err = svc.ReportResult(ctx, pkg.ID, &model.ExecutionResult{ExitCode: 0})
	assert.NoError(t, err)

	ok, err = svc.Cancel(ctx, pkg.ID)
	assert.NoError(t, err)
	assert.False(t, ok)
}

type failingList struct{}

func (f *failingList) Push(context.Context, string, *QueueItem, bool) error {
	return errors.New("substrate down")
}
func (f *failingList) Pop(context.Context, string) (*QueueItem, error) {
	return nil, errors.New("substrate down")
}
func (f *failingList) Remove(context.Context, string, func(*QueueItem) bool) (bool, error) {
	return false, errors.New("substrate down")
}
func (f *failingList) Items(context.Context, string) ([]*QueueItem, error) {
	return nil, errors.New("substrate down")
}

type failingCommandQueue struct{}

func (f *failingCommandQueue) Publish(context.Context, *Command) error {
	return errors.New("channel down")
}

func (f *failingCommandQueue) Consume(context.Context) (messaging.Message[Command], error) {
	return nil, errors.New("channel down")
}

func TestEnqueueBothPathsFail(t *testing.T) {
	svc := newTestService(t,
		WithQueue(&failingList{}),
		WithCommandChannelFactory(func(string) messaging.Queue[Command] {
			return &failingCommandQueue{}
		}))
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, &EnqueueRequest{
		Script:   "echo hi",
		Manifest: &model.Manifest{},
		DeviceID: "dev-1",
	})
	assert.ErrorIs(t, err, ErrNotDispatchable)

	// The orphaned row is marked failed so it never lingers invisible.
	records, listErr := svc.packageDAO.List(ctx)
	assert.NoError(t, listErr)
	assert.Len(t, records, 1)
	assert.Equal(t, model.StatusFailed, records[0].Status)
	assert.Contains(t, records[0].ExecutionResult.Error, "enqueue failed")
}

func TestEnqueuePushFailsNotifySucceeds(t *testing.T) {
	svc := newTestService(t, WithQueue(&failingList{}))
	ctx := context.Background()

	// Notification alone keeps the operation alive; the reconciliation sweep
	// later repairs the missing queue entry.
	pkg, err := svc.Enqueue(ctx, &EnqueueRequest{
		Script:   "echo hi",
		Manifest: &model.Manifest{},
		DeviceID: "dev-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, model.StatusQueued, pkg.Status)
}

func TestReconcile(t *testing.T) {
	config := DefaultConfig()
	config.ReconcileInterval = 10 * time.Millisecond
	svc := newTestService(t, WithConfig(config))
	ctx := context.Background()

	// A terminal record still sitting in the device queue gets removed.
	done := enqueue(t, svc, "dev-1", model.PriorityMedium)
	stored, err := svc.packageDAO.Load(ctx, done.ID)
	assert.NoError(t, err)
	stored.Status = model.StatusCompleted
	assert.NoError(t, svc.packageDAO.Save(ctx, stored))

	// A queued record with no queue entry gets marked failed once it is
	// older than the reconcile interval.
	lost := enqueue(t, svc, "dev-2", model.PriorityMedium)
	_, err = svc.queue.Pop(ctx, "dev-2")
	assert.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, svc.reconcile(ctx))

	items, err := svc.queue.Items(ctx, "dev-1")
	assert.NoError(t, err)
	assert.Empty(t, items)

	repaired, err := svc.Status(ctx, lost.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusFailed, repaired.Status)
	assert.Equal(t, "lost_from_queue", repaired.CancellationReason)
}

func TestListByDevice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	enqueue(t, svc, "dev-1", model.PriorityMedium)
	enqueue(t, svc, "dev-1", model.PriorityMedium)
	enqueue(t, svc, "dev-2", model.PriorityMedium)

	records, err := svc.ListByDevice(ctx, "dev-1")
	assert.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = svc.Fetch(ctx, "dev-1")
	assert.NoError(t, err)

	records, err = svc.ListByDevice(ctx, "dev-1", string(model.StatusQueued))
	assert.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = svc.ListByDevice(ctx, "dev-1", string(model.StatusExecuting))
	assert.NoError(t, err)
	assert.Len(t, records, 1)
}
