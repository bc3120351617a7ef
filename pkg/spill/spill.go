// Package spill writes partial aggregation state to disk and reads it back.
//
// Each run is one Arrow IPC stream, wrapped in a compression stream, in its
// own file under a per-job temporary directory. Runs are read back in the
// order they were written so that merged output keeps first-seen order.
package spill

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bytesmap/pkg/compression"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
	"github.com/ajitpratap0/bytesmap/pkg/logger"
)

// Config controls where and how runs are written.
type Config struct {
	// Directory is the parent of the job's spill directory; empty means
	// the system temp directory
	Directory   string
	Compression compression.Config
	Allocator   memory.Allocator
}

// Run describes one spilled state record.
type Run struct {
	Path string
	Rows int64
	// Bytes is the size of the file after compression
	Bytes int64
}

// Manager owns a spill directory. It is safe for concurrent use by
// partition workers.
type Manager struct {
	dir    string
	codec  compression.Codec
	mem    memory.Allocator
	logger *zap.Logger
	seq    atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewManager creates a manager with a fresh spill directory.
func NewManager(cfg Config, log *zap.Logger) (*Manager, error) {
	codec, err := compression.NewCodec(&cfg.Compression)
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(cfg.Directory, "bytesmap-spill-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create spill directory").
			WithDetail("parent", cfg.Directory)
	}
	mem := cfg.Allocator
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	if log == nil {
		log = logger.Get()
	}
	return &Manager{
		dir:    dir,
		codec:  codec,
		mem:    mem,
		logger: log.With(zap.String("spill_dir", dir)),
	}, nil
}

// Dir returns the spill directory.
func (m *Manager) Dir() string { return m.dir }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Write spills rec as a new run.
func (m *Manager) Write(ctx context.Context, rec arrow.Record) (run Run, err error) {
	if err := ctx.Err(); err != nil {
		return Run{}, errors.Wrap(err, errors.ErrorTypeCanceled, "spill canceled")
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return Run{}, errors.New(errors.ErrorTypeInternal, "spill manager is closed")
	}

	path := filepath.Join(m.dir, fmt.Sprintf("run-%06d.arrows", m.seq.Add(1)))
	f, err := os.Create(path) //nolint:gosec // G304: path is inside our own temp dir
	if err != nil {
		return Run{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to create spill run").WithDetail("path", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close spill run")
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	counter := &countingWriter{w: f}
	buffered := bufio.NewWriter(counter)
	cw, err := m.codec.NewWriter(buffered)
	if err != nil {
		return Run{}, err
	}

	w := ipc.NewWriter(cw, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(m.mem))
	if err := w.Write(rec); err != nil {
		return Run{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to write spill run").WithDetail("path", path)
	}
	if err := w.Close(); err != nil {
		return Run{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to finish spill stream")
	}
	if err := cw.Close(); err != nil {
		return Run{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to flush compressed spill run")
	}
	if err := buffered.Flush(); err != nil {
		return Run{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to flush spill run")
	}

	run = Run{Path: path, Rows: rec.NumRows(), Bytes: counter.n}
	m.logger.Debug("spilled run",
		zap.String("path", path),
		zap.Int64("rows", run.Rows),
		zap.Int64("bytes", run.Bytes),
		zap.String("compression", string(m.codec.Algorithm())))
	return run, nil
}

// Read calls fn with every record of run. Records are released after fn
// returns; fn must retain anything it keeps.
func (m *Manager) Read(ctx context.Context, run Run, fn func(arrow.Record) error) error {
	f, err := os.Open(run.Path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open spill run").WithDetail("path", run.Path)
	}
	defer f.Close()

	cr, err := m.codec.NewReader(bufio.NewReader(f))
	if err != nil {
		return err
	}
	defer cr.Close()

	r, err := ipc.NewReader(cr, ipc.WithAllocator(m.mem))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to open spill stream").WithDetail("path", run.Path)
	}
	defer r.Release()

	for r.Next() {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeCanceled, "spill read canceled")
		}
		if err := fn(r.Record()); err != nil {
			return err
		}
	}
	if err := r.Err(); err != nil && err != io.EOF {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to read spill run").WithDetail("path", run.Path)
	}
	return nil
}

// Remove deletes a run that is no longer needed.
func (m *Manager) Remove(run Run) error {
	if err := os.Remove(run.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to remove spill run").WithDetail("path", run.Path)
	}
	return nil
}

// Close removes the spill directory and everything in it.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if err := os.RemoveAll(m.dir); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to remove spill directory")
	}
	return nil
}
