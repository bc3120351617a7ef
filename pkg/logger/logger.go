// Package logger provides the process-wide zap logger for bytesmap.
//
// The level is held in a zap.AtomicLevel so it can be changed after the
// logger is built. Job, operator and partition identifiers travel in the
// context and are attached with WithContext.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// contextKey is the type for context keys
type contextKey string

const (
	// JobIDKey is the context key for the job ID
	JobIDKey contextKey = "job_id"
	// OperatorKey is the context key for the operator name
	OperatorKey contextKey = "operator"
	// PartitionKey is the context key for the partition number
	PartitionKey contextKey = "partition"
)

// Config represents logger configuration
type Config struct {
	Level       string
	Development bool
	// Encoding is json or console
	Encoding string
	// OutputPaths defaults to stderr so that results can go to stdout
	OutputPaths []string
}

// Init builds the global logger, replacing any previous one.
func Init(cfg Config) error {
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

func newLogger(cfg Config) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid log level").WithDetail("level", cfg.Level)
	}
	level.SetLevel(lvl)

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.Development {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var encoder zapcore.Encoder
	switch cfg.Encoding {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(enc)
	case "console":
		encoder = zapcore.NewConsoleEncoder(enc)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported log encoding %q", cfg.Encoding)
	}

	paths := cfg.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stderr"}
	}
	sink, _, err := zap.Open(paths...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to open log output")
	}
	errSink, _, err := zap.Open("stderr")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to open log error output")
	}

	opts := []zap.Option{zap.ErrorOutput(errSink), zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(zapcore.NewCore(encoder, sink, level), opts...), nil
}

// SetLevel changes the level of the global logger.
func SetLevel(l string) error {
	lvl, err := zapcore.ParseLevel(l)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid log level").WithDetail("level", l)
	}
	level.SetLevel(lvl)
	return nil
}

// Get returns the global logger, building a JSON logger on stderr if Init
// was never called.
func Get() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		var err error
		global, err = newLogger(Config{Level: level.Level().String(), Encoding: "json"})
		if err != nil {
			global = zap.NewNop()
		}
	}
	return global
}

// WithContext returns the global logger with the job, operator and
// partition carried by ctx.
func WithContext(ctx context.Context) *zap.Logger {
	l := Get()
	if jobID, ok := ctx.Value(JobIDKey).(string); ok {
		l = l.With(zap.String("job_id", jobID))
	}
	if operator, ok := ctx.Value(OperatorKey).(string); ok {
		l = l.With(zap.String("operator", operator))
	}
	if partition, ok := ctx.Value(PartitionKey).(int); ok {
		l = l.With(zap.Int("partition", partition))
	}
	return l
}

// ContextWithOperator returns a context carrying the operator name
func ContextWithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, OperatorKey, operator)
}

// ContextWithPartition returns a context carrying the partition number
func ContextWithPartition(ctx context.Context, partition int) context.Context {
	return context.WithValue(ctx, PartitionKey, partition)
}

// ContextWithJobID returns a context carrying the job ID
func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// SetForTest replaces the global logger, typically with a zaptest logger,
// and returns a function restoring the previous one.
func SetForTest(l *zap.Logger) func() {
	mu.Lock()
	prev := global
	global = l
	mu.Unlock()
	return func() {
		mu.Lock()
		global = prev
		mu.Unlock()
	}
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		return global.Sync()
	}
	return nil
}
