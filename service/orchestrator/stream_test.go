package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scriptgate/scriptgate/model"
)

func fastStreamConfig() Config {
	return Config{
		PollInterval:      5 * time.Millisecond,
		MaxPollInterval:   20 * time.Millisecond,
		BackoffMultiplier: 1.5,
		StreamMaxDuration: 2 * time.Second,
	}
}

func collect(t *testing.T, stream <-chan *Message, timeout time.Duration) []*Message {
	var out []*Message
	deadline := time.After(timeout)
	for {
		select {
		case message, ok := <-stream:
			if !ok {
				return out
			}
			out = append(out, message)
		case <-deadline:
			t.Fatal("stream never ended")
		}
	}
}

func TestStreamStatusFollowsLifecycle(t *testing.T) {
	svc, dispatcher := newTestService(t, WithConfig(fastStreamConfig()))
	ctx := context.Background()

	pkg, err := svc.Submit(ctx, &SubmitRequest{
		ToolOutput: map[string]interface{}{"script": "echo hi"},
		DeviceID:   "dev-1",
	})
	assert.NoError(t, err)

	stream, err := svc.StreamStatus(ctx, pkg.ID)
	assert.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		if _, err := dispatcher.Fetch(ctx, "dev-1"); err != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = dispatcher.ReportResult(ctx, pkg.ID, &model.ExecutionResult{ExitCode: 0, Stdout: "done"})
	}()

	messages := collect(t, stream, 5*time.Second)
	assert.GreaterOrEqual(t, len(messages), 2)
	assert.Contains(t, messages[0].Content[0].Text, "queued")
	last := messages[len(messages)-1]
	assert.Contains(t, last.Content[0].Text, "completed successfully")
	assert.Contains(t, last.Content[0].Text, "done")
}

func TestStreamStatusTerminalPackage(t *testing.T) {
	svc, dispatcher := newTestService(t, WithConfig(fastStreamConfig()))
	ctx := context.Background()

	pkg, err := svc.Submit(ctx, &SubmitRequest{
		ToolOutput: map[string]interface{}{"script": "echo hi"},
		DeviceID:   "dev-1",
	})
	assert.NoError(t, err)
	_, err = dispatcher.Fetch(ctx, "dev-1")
	assert.NoError(t, err)
	_, err = dispatcher.ReportResult(ctx, pkg.ID, &model.ExecutionResult{ExitCode: 1})
	assert.NoError(t, err)

	stream, err := svc.StreamStatus(ctx, pkg.ID)
	assert.NoError(t, err)

	messages := collect(t, stream, time.Second)
	assert.Len(t, messages, 1)
	assert.Contains(t, messages[0].Content[0].Text, "failed with exit code 1")
}

func TestStreamStatusMaxDuration(t *testing.T) {
	config := fastStreamConfig()
	config.StreamMaxDuration = 50 * time.Millisecond
	svc, _ := newTestService(t, WithConfig(config))
	ctx := context.Background()

	pkg, err := svc.Submit(ctx, &SubmitRequest{
		ToolOutput: map[string]interface{}{"script": "echo hi"},
		DeviceID:   "dev-1",
	})
	assert.NoError(t, err)

	stream, err := svc.StreamStatus(ctx, pkg.ID)
	assert.NoError(t, err)

	messages := collect(t, stream, 5*time.Second)
	assert.GreaterOrEqual(t, len(messages), 2)
	last := messages[len(messages)-1]
	assert.Contains(t, last.Content[0].Text, "Stopped watching")
	assert.Contains(t, last.Content[0].Text, "queued")
}

func TestStreamStatusPerCallOverrides(t *testing.T) {
	// The service keeps its defaults; one call narrows the window.
	svc, _ := newTestService(t)
	ctx := context.Background()

	pkg, err := svc.Submit(ctx, &SubmitRequest{
		ToolOutput: map[string]interface{}{"script": "echo hi"},
		DeviceID:   "dev-1",
	})
	assert.NoError(t, err)

	stream, err := svc.StreamStatus(ctx, pkg.ID,
		WithPollInterval(5*time.Millisecond),
		WithMaxDuration(50*time.Millisecond))
	assert.NoError(t, err)

	messages := collect(t, stream, 5*time.Second)
	assert.GreaterOrEqual(t, len(messages), 2)
	last := messages[len(messages)-1]
	assert.Contains(t, last.Content[0].Text, "Stopped watching")
	assert.Contains(t, last.Content[0].Text, "50ms")
}

func TestStreamStatusContextCancel(t *testing.T) {
	svc, _ := newTestService(t, WithConfig(fastStreamConfig()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pkg, err := svc.Submit(ctx, &SubmitRequest{
		ToolOutput: map[string]interface{}{"script": "echo hi"},
		DeviceID:   "dev-1",
	})
	assert.NoError(t, err)

	stream, err := svc.StreamStatus(ctx, pkg.ID)
	assert.NoError(t, err)

	// Drain the initial snapshot, then cancel.
	<-stream
	cancel()

	select {
	case _, ok := <-stream:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream did not close on cancellation")
	}
}

func TestStreamStatusUnknownPackage(t *testing.T) {
	svc, _ := newTestService(t, WithConfig(fastStreamConfig()))
	_, err := svc.StreamStatus(context.Background(), "missing")
	assert.Error(t, err)
}
