// Package notify forwards engine events to NATS as JSON messages.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"iocapture/internal/events"
	applog "iocapture/internal/log"
)

// Subjects, relative to the configured prefix.
const (
	SubjectRecordingStarted  = "recording.started"
	SubjectRecordingFinished = "recording.finished"
	SubjectSinkFailed        = "sink.failed"
	SubjectFramesDropped     = "frames.dropped"
	SubjectDeviceLost        = "device.lost"
)

// Conn is the part of *nats.Conn the notifier uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Connect dials url, retrying up to attempts times with wait between tries.
func Connect(ctx context.Context, url string, attempts int, wait time.Duration) (*nats.Conn, error) {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		var nc *nats.Conn
		nc, err = nats.Connect(url,
			nats.Name("iocapture"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					applog.Warnf("Notify: NATS disconnected: %v", err)
				}
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				applog.Infof("Notify: NATS reconnected")
			}),
		)
		if err == nil {
			applog.Infof("Notify: Connected to NATS at %s", url)
			return nc, nil
		}
		applog.Warnf("Notify: Failed to connect to NATS (attempt %d/%d): %v", i+1, attempts, err)

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", attempts, err)
}

// Notifier subscribes to an event bus and publishes each event under
// subject.<kind>.
type Notifier struct {
	conn    Conn
	subject string

	mu     sync.Mutex
	unsubs []func()
}

// New returns a notifier publishing on conn below subject.
func New(conn Conn, subject string) *Notifier {
	return &Notifier{conn: conn, subject: subject}
}

// Attach subscribes to the lifecycle events on bus. Level events are not
// forwarded.
func (n *Notifier) Attach(bus *events.Bus) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.unsubs = append(n.unsubs,
		bus.Subscribe(func(e events.RecordingStartedEvent) { n.publish(SubjectRecordingStarted, e) }),
		bus.Subscribe(func(e events.RecordingFinishedEvent) { n.publish(SubjectRecordingFinished, e) }),
		bus.Subscribe(func(e events.SinkFailedEvent) { n.publish(SubjectSinkFailed, e) }),
		bus.Subscribe(func(e events.FramesDroppedEvent) { n.publish(SubjectFramesDropped, e) }),
		bus.Subscribe(func(e events.DeviceLostEvent) { n.publish(SubjectDeviceLost, e) }),
	)
}

// Detach removes every bus subscription.
func (n *Notifier) Detach() {
	n.mu.Lock()
	unsubs := n.unsubs
	n.unsubs = nil
	n.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// Close detaches from the bus and drains the connection so queued messages
// are flushed.
func (n *Notifier) Close() error {
	n.Detach()
	if err := n.conn.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

func (n *Notifier) publish(kind string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		applog.Errorf("Notify: encode %s: %v", kind, err)
		return
	}
	subject := n.subject + "." + kind
	if err := n.conn.Publish(subject, data); err != nil {
		applog.Warnf("Notify: publish %s: %v", subject, err)
	}
}

var _ Conn = (*nats.Conn)(nil)
