// Package profiling captures pprof profiles and runtime samples around a
// job run.
package profiling

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// ProfileType represents the type of profiling to perform
type ProfileType string

const (
	CPUProfile       ProfileType = "cpu"
	MemoryProfile    ProfileType = "memory"
	BlockProfile     ProfileType = "block"
	MutexProfile     ProfileType = "mutex"
	GoroutineProfile ProfileType = "goroutine"
	TraceProfile     ProfileType = "trace"
	AllProfiles      ProfileType = "all"
)

// ParseTypes parses a comma separated list such as "cpu,memory".
func ParseTypes(s string) ([]ProfileType, error) {
	var types []ProfileType
	for _, part := range strings.Split(s, ",") {
		t := ProfileType(strings.ToLower(strings.TrimSpace(part)))
		switch t {
		case "":
			continue
		case CPUProfile, MemoryProfile, BlockProfile, MutexProfile, GoroutineProfile, TraceProfile, AllProfiles:
			types = append(types, t)
		default:
			return nil, errors.Newf(errors.ErrorTypeConfig, "unknown profile type %q", part)
		}
	}
	return types, nil
}

// ProfileConfig contains configuration for profiling
type ProfileConfig struct {
	Types []ProfileType

	// Output directory for profile files
	OutputDir string

	// Block profile rate (0 = disabled)
	BlockProfileRate int

	// Mutex profile fraction (0 = disabled)
	MutexProfileFraction int

	// SampleInterval is how often heap and RSS are sampled; 0 disables
	// sampling
	SampleInterval time.Duration
}

// DefaultProfileConfig returns a default profiling configuration
func DefaultProfileConfig() *ProfileConfig {
	return &ProfileConfig{
		Types:                []ProfileType{CPUProfile, MemoryProfile},
		OutputDir:            "./profiles",
		BlockProfileRate:     1,
		MutexProfileFraction: 1,
		SampleInterval:       100 * time.Millisecond,
	}
}

// Summary describes one profiled run.
type Summary struct {
	Duration      time.Duration
	PeakHeapBytes uint64
	// PeakRSSBytes is zero when the process memory cannot be read
	PeakRSSBytes uint64
	NumGC        uint32
	GCPauseTotal time.Duration
	Samples      int
	// Files lists every profile written
	Files []string
}

// Profiler collects the configured profiles between Start and Stop.
type Profiler struct {
	config *ProfileConfig
	logger *zap.Logger

	stop      chan struct{}
	wg        sync.WaitGroup
	startTime time.Time
	cpuFile   *os.File
	traceFile *os.File

	mu      sync.Mutex
	summary Summary
}

// NewProfiler creates a new profiler instance
func NewProfiler(config *ProfileConfig, logger *zap.Logger) *Profiler {
	if config == nil {
		config = DefaultProfileConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Profiler{
		config: config,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

func (p *Profiler) wants(t ProfileType) bool {
	for _, c := range p.config.Types {
		if c == t || c == AllProfiles {
			return true
		}
	}
	return false
}

// Start begins profiling
func (p *Profiler) Start(ctx context.Context) error {
	p.startTime = time.Now()

	if err := os.MkdirAll(p.config.OutputDir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create profile directory").
			WithDetail("path", p.config.OutputDir)
	}

	if p.wants(BlockProfile) && p.config.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(p.config.BlockProfileRate)
	}
	if p.wants(MutexProfile) && p.config.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(p.config.MutexProfileFraction)
	}

	if p.wants(CPUProfile) {
		f, err := p.create("cpu", "prof")
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to start CPU profiling")
		}
		p.cpuFile = f
	}
	if p.wants(TraceProfile) {
		f, err := p.create("trace", "out")
		if err != nil {
			p.stopCPU()
			return err
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			p.stopCPU()
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to start tracing")
		}
		p.traceFile = f
	}

	if p.config.SampleInterval > 0 {
		p.wg.Add(1)
		go p.sample(ctx)
	}

	p.logger.Info("profiling started",
		zap.String("output_dir", p.config.OutputDir),
		zap.Any("types", p.config.Types))
	return nil
}

// Stop stops profiling, writes the snapshot profiles and returns a summary
// of the run.
func (p *Profiler) Stop() (*Summary, error) {
	close(p.stop)
	p.wg.Wait()

	p.stopCPU()
	if p.traceFile != nil {
		trace.Stop()
		p.closeFile(p.traceFile)
		p.traceFile = nil
	}

	var firstErr error
	save := func(t ProfileType, name string, debug int) {
		if !p.wants(t) {
			return
		}
		if err := p.writeProfile(name, debug); err != nil {
			p.logger.Error("failed to save profile", zap.String("profile", name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	save(MemoryProfile, "heap", 0)
	save(BlockProfile, "block", 0)
	save(MutexProfile, "mutex", 0)
	save(GoroutineProfile, "goroutine", 2)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	p.mu.Lock()
	p.observeHeap(ms.HeapAlloc)
	p.summary.Duration = time.Since(p.startTime)
	p.summary.NumGC = ms.NumGC
	p.summary.GCPauseTotal = time.Duration(ms.PauseTotalNs)
	summary := p.summary
	summary.Files = append([]string(nil), p.summary.Files...)
	p.mu.Unlock()

	p.logger.Info("profiling completed",
		zap.Duration("duration", summary.Duration),
		zap.Uint64("peak_heap_bytes", summary.PeakHeapBytes),
		zap.Uint64("peak_rss_bytes", summary.PeakRSSBytes),
		zap.Uint32("gc_runs", summary.NumGC),
		zap.Strings("files", summary.Files))
	return &summary, firstErr
}

func (p *Profiler) stopCPU() {
	if p.cpuFile == nil {
		return
	}
	pprof.StopCPUProfile()
	p.closeFile(p.cpuFile)
	p.cpuFile = nil
}

func (p *Profiler) create(name, ext string) (*os.File, error) {
	path := filepath.Join(p.config.OutputDir, fmt.Sprintf("%s_%s.%s", name, time.Now().Format("20060102_150405"), ext))
	f, err := os.Create(path) //nolint:gosec // G304: path is inside the configured profile directory
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create profile file").WithDetail("path", path)
	}
	p.mu.Lock()
	p.summary.Files = append(p.summary.Files, path)
	p.mu.Unlock()
	return f, nil
}

func (p *Profiler) closeFile(f *os.File) {
	if err := f.Close(); err != nil {
		p.logger.Warn("failed to close profile", zap.String("file", f.Name()), zap.Error(err))
	}
}

func (p *Profiler) writeProfile(name string, debug int) error {
	prof := pprof.Lookup(name)
	if prof == nil {
		return errors.Newf(errors.ErrorTypeInternal, "profile %s is not available", name)
	}
	f, err := p.create(name, "prof")
	if err != nil {
		return err
	}
	defer p.closeFile(f)

	if name == "heap" {
		runtime.GC()
	}
	if err := prof.WriteTo(f, debug); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeInternal, "failed to write %s profile", name)
	}
	return nil
}

// sample records the peak heap and resident set size until Stop.
func (p *Profiler) sample(ctx context.Context) {
	defer p.wg.Done()

	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		p.logger.Debug("process memory unavailable", zap.Error(err))
		proc = nil
	}

	ticker := time.NewTicker(p.config.SampleInterval)
	defer ticker.Stop()

	var ms runtime.MemStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
		}

		runtime.ReadMemStats(&ms)
		var rss uint64
		if proc != nil {
			if info, err := proc.MemoryInfo(); err == nil {
				rss = info.RSS
			}
		}

		p.mu.Lock()
		p.observeHeap(ms.HeapAlloc)
		if rss > p.summary.PeakRSSBytes {
			p.summary.PeakRSSBytes = rss
		}
		p.summary.Samples++
		p.mu.Unlock()
	}
}

func (p *Profiler) observeHeap(b uint64) {
	if b > p.summary.PeakHeapBytes {
		p.summary.PeakHeapBytes = b
	}
}
