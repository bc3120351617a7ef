// Package mmap maps input files read-only into memory so that columnar
// readers can seek through them without extra copies or syscalls.
package mmap

import (
	"bytes"
	"os"
	"sync"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// File is a read-only mapping of a file. It implements io.Reader,
// io.ReaderAt and io.Seeker over the mapped bytes. File is not safe for
// concurrent use except through ReadAt.
type File struct {
	*bytes.Reader

	mu   sync.Mutex
	file *os.File
	data []byte
	path string
}

// Open maps the file at path. Empty files yield an empty mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path) //nolint:gosec // G304: user supplied input path
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open file").WithDetail("path", path)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to stat file").WithDetail("path", path)
	}

	var data []byte
	if size := stat.Size(); size > 0 {
		data, err = mapFile(f, int(size))
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to map file").WithDetail("path", path)
		}
		// readers jump between footer and column chunks
		_ = adviseWillNeed(data)
	}

	return &File{Reader: bytes.NewReader(data), file: f, data: data, path: path}, nil
}

// Bytes returns the mapped contents. The slice is invalid after Close.
func (m *File) Bytes() []byte {
	return m.data
}

// Path returns the path the file was opened with.
func (m *File) Path() string {
	return m.path
}

// Close unmaps and closes the file. Closing twice is a no-op.
func (m *File) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.data != nil {
		if uerr := unmapFile(m.data); uerr != nil {
			err = errors.Wrap(uerr, errors.ErrorTypeFile, "failed to unmap file").WithDetail("path", m.path)
		}
		m.data = nil
		m.Reader = bytes.NewReader(nil)
	}
	if m.file != nil {
		if cerr := m.file.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close file").WithDetail("path", m.path)
		}
		m.file = nil
	}
	return err
}
