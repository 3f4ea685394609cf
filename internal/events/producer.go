// Package events publishes the lifecycle of generation jobs as CloudEvents.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSource string = "qrng"
	defaultTopic  string = "qrng.events"

	closeTimeout = 5 * time.Second
)

var ErrProducerClosed = errors.New("event producer is closed")

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer is a wrapper around a Writer with the buffer.
// Write never waits for the writer: messages are buffered and sent in order by a single goroutine.
type EventProducer struct {
	buffer   *buffer
	notifyCh chan struct{}
	doneCh   chan struct{}
	stopped  chan struct{}
	once     sync.Once
	writer   Writer
	source   string
	topic    string
}

func NewEventProducer(w Writer, opts ...ProducerOptions) *EventProducer {
	ep := &EventProducer{
		buffer:   newBuffer(),
		notifyCh: make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
		writer:   w,
		source:   defaultSource,
		topic:    defaultTopic,
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

func (ep *EventProducer) Write(ctx context.Context, kind string, body io.Reader) error {
	select {
	case <-ep.doneCh:
		return ErrProducerClosed
	default:
	}

	d, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	// the buffer refuses the message once Close started, so an accepted
	// message is always drained
	if _, ok := ep.buffer.PushBack(&message{Kind: kind, Data: d}); !ok {
		return ErrProducerClosed
	}

	// wake up the sender, a pending notification is enough
	select {
	case ep.notifyCh <- struct{}{}:
	default:
	}

	return nil
}

// Publish marshals v to json and writes it.
func (ep *EventProducer) Publish(ctx context.Context, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ep.Write(ctx, kind, bytes.NewReader(data))
}

// Close sends the buffered messages and closes the writer.
func (ep *EventProducer) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	ep.once.Do(func() {
		ep.buffer.Close()
		close(ep.doneCh)
	})

	g, ctx := errgroup.WithContext(closeCtx)
	g.Go(func() error {
		select {
		case <-ep.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
		return ep.writer.Close(ctx)
	})
	if err := g.Wait(); err != nil {
		zap.S().Named("event_producer").Errorf("event producer closed with error: %s", err)
		return err
	}

	zap.S().Named("event_producer").Debug("event producer closed")

	return nil
}

func (ep *EventProducer) run() {
	defer close(ep.stopped)
	for {
		ep.drain()

		select {
		case <-ep.notifyCh:
		case <-ep.doneCh:
			ep.drain()
			return
		}
	}
}

func (ep *EventProducer) drain() {
	for msg := ep.buffer.Pop(); msg != nil; msg = ep.buffer.Pop() {
		e := cloudevents.NewEvent()
		e.SetID(uuid.NewString())
		e.SetSource(ep.source)
		e.SetType(msg.Kind)
		e.SetTime(time.Now())
		_ = e.SetData(*cloudevents.StringOfApplicationJSON(), msg.Data)

		if err := ep.writer.Write(context.TODO(), ep.topic, e); err != nil {
			zap.S().Named("event_producer").Errorw("failed to send event", "error", err, "type", msg.Kind)
		}
	}
}
