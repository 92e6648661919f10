// Package messaging delivers workflow notifications to a broker or the log.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/infrastructure/resilience"
)

// Options configure the NATS connection
type Options struct {
	URL                  string
	SubjectPrefix        string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	Executor             *resilience.Executor
}

// NATSNotifier publishes notifications as JSON on <prefix>.<type>
type NATSNotifier struct {
	conn     *nats.Conn
	prefix   string
	executor *resilience.Executor
	logger   *zap.Logger
}

// NewNATSNotifier connects to the broker
func NewNATSNotifier(opts Options, logger *zap.Logger) (*NATSNotifier, error) {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := opts.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := opts.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if opts.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *opts.RetryOnFailedConnect
	}
	prefix := opts.SubjectPrefix
	if prefix == "" {
		prefix = "docflow"
	}

	conn, err := nats.Connect(
		opts.URL,
		nats.Name("docflow"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSNotifier{
		conn:     conn,
		prefix:   prefix,
		executor: opts.Executor,
		logger:   logger,
	}, nil
}

// Subject returns the subject a notification type is published on
func (n *NATSNotifier) Subject(notificationType string) string {
	return n.prefix + "." + notificationType
}

// Notify publishes one notification
func (n *NATSNotifier) Notify(ctx context.Context, msg *port.Notification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	subject := n.Subject(msg.Type)

	call := func(context.Context) error {
		if err := n.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if n.executor != nil {
		err = n.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		n.logger.Error("Failed to publish notification",
			zap.String("subject", subject),
			zap.Int64("recipient_id", msg.RecipientID),
			zap.Error(err))
		return err
	}
	return nil
}

// Ready reports whether the connection is usable
func (n *NATSNotifier) Ready() error {
	if n.conn == nil || !n.conn.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close drains pending publishes and closes the connection
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionReconnecting) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

// Verify interface compliance
var _ port.Notifier = (*NATSNotifier)(nil)
