package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/docflow/internal/application/port"
)

func TestClassifyNATSError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"no servers", nats.ErrNoServers, true, true},
		{"wrapped timeout", fmt.Errorf("nats publish: %w", nats.ErrTimeout), true, true},
		{"closed", nats.ErrConnectionClosed, true, true},
		{"cancelled", context.Canceled, false, false},
		{"payload", nats.ErrMaxPayload, false, true},
		{"other", errors.New("boom"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := classifyNATSError(tt.err)
			assert.Equal(t, tt.retryable, class.Retryable)
			assert.Equal(t, tt.record, class.RecordFailure)
		})
	}
}

func TestSubject(t *testing.T) {
	n := &NATSNotifier{prefix: "uni"}
	assert.Equal(t, "uni.document.approved", n.Subject("document.approved"))
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	err := n.Notify(context.Background(), &port.Notification{Type: "assignment.created", DocumentID: 3, RecipientID: 5, Message: "new task"})
	assert.NoError(t, err)
	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, int64(5), entries[0].ContextMap()["recipient_id"])
	}
}

func TestReady_NotConnected(t *testing.T) {
	assert.Error(t, (&NATSNotifier{}).Ready())
	assert.NoError(t, (&NATSNotifier{}).Close())
}
