package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type deploymentEvent struct {
	Name string
}

type alertEvent struct {
	Severity string
}

func TestTypedPublishSubscribe(t *testing.T) {
	svc, err := New("memory")
	assert.NoError(t, err)

	received := make(chan *Event[deploymentEvent], 1)
	err = SetListenerOf(svc, func(e *Event[deploymentEvent]) {
		received <- e
	})
	assert.NoError(t, err)

	publisher, err := PublisherOf[deploymentEvent](svc)
	assert.NoError(t, err)

	eventContext := &Context{SessionID: "sess-1", PackageID: "pkg-1", EventType: "execution.queued"}
	err = publisher.Publish(context.Background(), NewEvent(eventContext, deploymentEvent{Name: "nginx"}))
	assert.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, "nginx", e.Data.Name)
		assert.Equal(t, "sess-1", e.Context.SessionID)
		assert.Equal(t, "pkg-1", e.Context.PackageID)
	case <-time.After(time.Second):
		t.Fatal("listener never received the event")
	}
}

func TestTypesAreIsolated(t *testing.T) {
	svc, err := New("memory")
	assert.NoError(t, err)

	deployments := make(chan *Event[deploymentEvent], 1)
	assert.NoError(t, SetListenerOf(svc, func(e *Event[deploymentEvent]) { deployments <- e }))

	alerts := make(chan *Event[alertEvent], 1)
	assert.NoError(t, SetListenerOf(svc, func(e *Event[alertEvent]) { alerts <- e }))

	publisher, err := PublisherOf[alertEvent](svc)
	assert.NoError(t, err)
	assert.NoError(t, publisher.Publish(context.Background(), NewEvent(&Context{}, alertEvent{Severity: "high"})))

	select {
	case e := <-alerts:
		assert.Equal(t, "high", e.Data.Severity)
	case <-time.After(time.Second):
		t.Fatal("alert listener never received the event")
	}

	select {
	case <-deployments:
		t.Fatal("deployment listener received an alert event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublisherIsCachedPerType(t *testing.T) {
	svc, err := New("memory")
	assert.NoError(t, err)

	a, err := PublisherOf[deploymentEvent](svc)
	assert.NoError(t, err)
	b, err := PublisherOf[deploymentEvent](svc)
	assert.NoError(t, err)
	assert.Same(t, a, b)
}

func TestUnsupportedVendor(t *testing.T) {
	_, err := New("kafka")
	assert.Error(t, err)
}
