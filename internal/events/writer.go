package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"
)

// JSONWriter writes one structured mode CloudEvent per line.
type JSONWriter struct {
	lock sync.Mutex
	w    io.Writer
}

func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w}
}

func (j *JSONWriter) Write(_ context.Context, _ string, e cloudevents.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	j.lock.Lock()
	defer j.lock.Unlock()
	_, err = j.w.Write(append(data, '\n'))
	return err
}

// Close closes the underlying writer when it is an io.Closer.
func (j *JSONWriter) Close(_ context.Context) error {
	if c, ok := j.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// LogWriter logs the events at info level.
type LogWriter struct{}

func (s *LogWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	zap.S().Named("event_log_writer").Infow("event wrote", "type", e.Type(), "id", e.ID(), "data", string(e.Data()), "topic", topic)
	return nil
}

func (s *LogWriter) Close(_ context.Context) error {
	return nil
}
