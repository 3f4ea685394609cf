package log

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qrandom/qrng/pkg/requestid"
)

// StructuredLogger emits one structured entry per operation step.
//
// Usage:
//
//	tracer := log.NewDebugLogger("selector").WithContext(ctx).Operation("select").Build()
//	tracer.Step("listed").WithInt("count", 3).Log()
//	tracer.Success().Log()
type StructuredLogger struct {
	name  string
	level zap.AtomicLevel
}

// NewDebugLogger returns a logger writing at debug level.
func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zap.NewAtomicLevelAt(zap.DebugLevel)}
}

// NewInfoLogger returns a logger writing at info level.
func NewInfoLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zap.NewAtomicLevelAt(zap.InfoLevel)}
}

func (l *StructuredLogger) WithContext(ctx context.Context) *OperationBuilder {
	b := &OperationBuilder{logger: l}
	if id := requestid.FromContext(ctx); id != "" {
		b.fields = append(b.fields, zap.String("request_id", id))
	}
	return b
}

type OperationBuilder struct {
	logger    *StructuredLogger
	operation string
	fields    []zap.Field
}

func (b *OperationBuilder) Operation(name string) *OperationBuilder {
	b.operation = name
	return b
}

func (b *OperationBuilder) WithString(key, value string) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value))
	return b
}

func (b *OperationBuilder) WithInt(key string, value int) *OperationBuilder {
	b.fields = append(b.fields, zap.Int(key, value))
	return b
}

func (b *OperationBuilder) WithParam(key string, value any) *OperationBuilder {
	b.fields = append(b.fields, zap.Any(key, value))
	return b
}

func (b *OperationBuilder) Build() *OperationTracer {
	fields := make([]zap.Field, 0, len(b.fields)+1)
	fields = append(fields, zap.String("operation", b.operation))
	fields = append(fields, b.fields...)
	return &OperationTracer{
		logger: b.logger,
		fields: fields,
		start:  time.Now(),
	}
}

// OperationTracer carries the fields of one operation across its steps.
type OperationTracer struct {
	logger *StructuredLogger
	fields []zap.Field
	start  time.Time
}

func (t *OperationTracer) Step(name string) *Entry {
	return t.entry(t.logger.level.Level(), "step", zap.String("step", name))
}

func (t *OperationTracer) Error(err error) *Entry {
	return t.entry(zapcore.ErrorLevel, "failed", zap.Error(err))
}

func (t *OperationTracer) Success() *Entry {
	return t.entry(t.logger.level.Level(), "completed", zap.Duration("duration", time.Since(t.start)))
}

func (t *OperationTracer) entry(level zapcore.Level, msg string, field zap.Field) *Entry {
	fields := make([]zap.Field, 0, len(t.fields)+2)
	fields = append(fields, t.fields...)
	fields = append(fields, field)
	return &Entry{name: t.logger.name, level: level, msg: msg, fields: fields}
}

type Entry struct {
	name   string
	level  zapcore.Level
	msg    string
	fields []zap.Field
}

func (e *Entry) WithString(key, value string) *Entry {
	e.fields = append(e.fields, zap.String(key, value))
	return e
}

func (e *Entry) WithInt(key string, value int) *Entry {
	e.fields = append(e.fields, zap.Int(key, value))
	return e
}

func (e *Entry) WithParam(key string, value any) *Entry {
	e.fields = append(e.fields, zap.Any(key, value))
	return e
}

// Log writes the entry through the global zap logger, so the level set by
// the binary at startup applies.
func (e *Entry) Log() {
	if ce := zap.L().Named(e.name).Check(e.level, e.msg); ce != nil {
		ce.Write(e.fields...)
	}
}
