package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bytesmap/internal/pipeline"
	"github.com/ajitpratap0/bytesmap/pkg/aggregate"
	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/compression"
	"github.com/ajitpratap0/bytesmap/pkg/config"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
	"github.com/ajitpratap0/bytesmap/pkg/formats/columnar"
	"github.com/ajitpratap0/bytesmap/pkg/logger"
	"github.com/ajitpratap0/bytesmap/pkg/observability"
	"github.com/ajitpratap0/bytesmap/pkg/profiling"
	"github.com/ajitpratap0/bytesmap/pkg/spill"
)

// job describes one aggregation command.
type job struct {
	use      string
	short    string
	operator string
	// newAccumulator creates a partition accumulator; large selects 64-bit
	// offsets
	newAccumulator func(kind bytesmap.OutputType, large bool, opts ...bytesmap.Option) aggregate.Accumulator
	// countOnly is offered by jobs whose result can be a single number
	countOnly bool
}

var distinctJob = job{
	use:       "distinct",
	short:     "Write the distinct values of a column",
	operator:  "count_distinct",
	countOnly: true,
	newAccumulator: func(kind bytesmap.OutputType, large bool, opts ...bytesmap.Option) aggregate.Accumulator {
		if large {
			return aggregate.NewCountDistinct[int64](kind, opts...)
		}
		return aggregate.NewCountDistinct[int32](kind, opts...)
	},
}

var groupCountJob = job{
	use:      "groupby",
	short:    "Count the rows of every distinct value of a column",
	operator: "group_count",
	newAccumulator: func(kind bytesmap.OutputType, large bool, opts ...bytesmap.Option) aggregate.Accumulator {
		if large {
			return aggregate.NewGroupCounter[int64](kind, opts...)
		}
		return aggregate.NewGroupCounter[int32](kind, opts...)
	},
}

// flagKeys maps command line flags to configuration keys. Every key can
// also be set through a BYTESMAP_ environment variable, e.g.
// BYTESMAP_INPUT_COLUMN.
var flagKeys = map[string]string{
	"name":               "name",
	"input":              "input.path",
	"input-format":       "input.format",
	"column":             "input.column",
	"null-value":         "input.null_values",
	"output":             "output.path",
	"output-format":      "output.format",
	"output-compression": "output.compression",
	"partitions":         "pipeline.partitions",
	"batch-size":         "pipeline.batch_size",
	"memory-limit-mb":    "pipeline.memory_limit_mb",
	"queue-depth":        "pipeline.queue_depth",
	"large-offsets":      "map.large_offsets",
	"binary":             "map.binary",
	"initial-capacity":   "map.initial_capacity",
	"spill":              "spill.enabled",
	"spill-dir":          "spill.directory",
	"spill-compression":  "spill.compression",
	"log-level":          "observability.log_level",
	"log-encoding":       "observability.log_encoding",
	"metrics-address":    "observability.metrics_address",
	"trace":              "observability.enable_tracing",
}

func newJobCommand(j job) *cobra.Command {
	cmd := &cobra.Command{
		Use:   j.use,
		Short: j.short,
		Example: fmt.Sprintf(`  bytesmap %s --input events.parquet --input-format parquet --column user_id
  bytesmap %s --config job.yaml --output result.arrow --output-format arrow`, j.use, j.use),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, j)
		},
	}

	defaults := config.Default(j.operator)
	f := cmd.Flags()
	f.String("name", j.operator, "Job name used in logs and metrics")
	f.StringP("input", "i", "", "Input file")
	f.String("input-format", defaults.Input.Format, "Input format (csv, jsonl, avro, arrow, parquet)")
	f.StringP("column", "c", "", "Column to aggregate")
	f.StringSlice("null-value", nil, "Text read as null; may be repeated")
	f.StringP("output", "o", "-", "Output file, - for standard output")
	f.String("output-format", defaults.Output.Format, "Output format (csv, jsonl, avro, arrow, parquet)")
	f.String("output-compression", "", "Output compression, depending on the format")
	f.Int("partitions", defaults.Pipeline.Partitions, "Number of hash partitions")
	f.Int("batch-size", defaults.Pipeline.BatchSize, "Rows per input chunk")
	f.Int("memory-limit-mb", defaults.Pipeline.MemoryLimitMB, "Memory limit for all maps before spilling")
	f.Int("queue-depth", defaults.Pipeline.QueueDepth, "Chunks buffered per partition")
	f.Bool("large-offsets", false, "Use 64-bit offsets for the output arrays")
	f.Bool("binary", false, "Treat values as binary instead of utf8")
	f.Int("initial-capacity", defaults.Map.InitialCapacity, "Initial index slots of each map")
	f.Bool("spill", defaults.Spill.Enabled, "Spill partial state to disk above the memory limit")
	f.String("spill-dir", "", "Directory for spill runs; default is the system temp directory")
	f.String("spill-compression", defaults.Spill.Compression, "Spill compression (none, zstd, s2, snappy, lz4)")
	if j.countOnly {
		f.Bool("count", false, "Print only the number of distinct non-null values")
	}
	return cmd
}

// loadConfig builds the job configuration from defaults, the optional
// config file, BYTESMAP_ environment variables and explicitly set flags,
// in increasing precedence.
func loadConfig(cmd *cobra.Command, name string) (*config.Config, error) {
	cfg := config.Default(name)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetEnvPrefix("BYTESMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for flag, key := range flagKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to bind environment for %s", key)
		}
		// unset flags must not override the config file with their defaults
		if fl := cmd.Flags().Lookup(flag); fl != nil && fl.Changed {
			if err := v.BindPFlag(key, fl); err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to bind flag %s", flag)
			}
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to apply settings")
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runJob(cmd *cobra.Command, j job) (err error) {
	cfg, err := loadConfig(cmd, j.operator)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Encoding:    cfg.Observability.LogEncoding,
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ContextWithJobID(ctx, fmt.Sprintf("%s-%d", cfg.Name, time.Now().UnixNano()))
	ctx = logger.ContextWithOperator(ctx, j.operator)
	log := logger.WithContext(ctx)

	if err := observability.InitTracing(observability.TracingConfig{
		Enabled:        cfg.Observability.EnableTracing,
		ServiceName:    "bytesmap",
		ServiceVersion: version,
		SamplingRate:   1.0,
		Writer:         cmd.ErrOrStderr(),
	}); err != nil {
		return err
	}
	defer func() {
		if serr := observability.Shutdown(context.Background()); serr != nil {
			log.Warn("failed to flush traces", zap.Error(serr))
		}
	}()

	stopProfiling, err := startProfiling(ctx, cmd, log)
	if err != nil {
		return err
	}
	defer stopProfiling()

	if addr := cfg.Observability.MetricsAddress; addr != "" {
		shutdown := serveMetrics(addr, log)
		defer func() { _ = shutdown(context.Background()) }()
	}

	kind := bytesmap.Utf8
	if cfg.Map.Binary {
		kind = bytesmap.Binary
	}

	var manager *spill.Manager
	if cfg.Spill.Enabled {
		manager, err = newSpillManager(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := manager.Close(); cerr != nil {
				log.Warn("failed to remove spill directory", zap.Error(cerr))
			}
		}()
	}

	reader, err := columnar.Open(cfg.Input.Path, &columnar.ReaderConfig{
		Format:     columnar.Format(cfg.Input.Format),
		Column:     cfg.Input.Column,
		Kind:       kind,
		BatchSize:  cfg.Pipeline.BatchSize,
		NullValues: cfg.Input.NullValues,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	opts := []bytesmap.Option{
		bytesmap.WithInitialCapacity(cfg.Map.InitialCapacity),
		bytesmap.WithBufferCapacity(cfg.Map.BufferCapacity),
	}
	pcfg := pipeline.Config{
		Operator:   j.operator,
		Kind:       kind,
		Partitions: cfg.Pipeline.Partitions,
		QueueDepth: cfg.Pipeline.QueueDepth,
		Spill:      manager,
	}
	if manager != nil {
		pcfg.PartitionBudget = int64(cfg.PartitionBudget())
	}
	runner, err := pipeline.New(pcfg, func(int) aggregate.Accumulator {
		return j.newAccumulator(kind, cfg.Map.LargeOffsets, opts...)
	}, log)
	if err != nil {
		return err
	}

	states, err := runner.Run(ctx, reader)
	if err != nil {
		return err
	}
	defer func() {
		for _, rec := range states {
			rec.Release()
		}
	}()

	if countOnly, _ := cmd.Flags().GetBool("count"); countOnly {
		var n int64
		for _, rec := range states {
			col := rec.Column(0)
			n += int64(col.Len() - col.NullN())
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
		return err
	}
	return writeResults(cmd.OutOrStdout(), cfg, states, log)
}

func newSpillManager(cfg *config.Config, log *zap.Logger) (*spill.Manager, error) {
	algorithm, err := compression.ParseAlgorithm(cfg.Spill.Compression)
	if err != nil {
		return nil, err
	}
	level, err := compression.ParseLevel(cfg.Spill.CompressionLevel)
	if err != nil {
		return nil, err
	}
	return spill.NewManager(spill.Config{
		Directory:   cfg.Spill.Directory,
		Compression: compression.Config{Algorithm: algorithm, Level: level},
	}, log)
}

// stdoutSink hides Close so that writers never close standard output.
type stdoutSink struct{ io.Writer }

func writeResults(stdout io.Writer, cfg *config.Config, states []arrow.Record, log *zap.Logger) (err error) {
	wcfg := &columnar.WriterConfig{
		Format:      columnar.Format(cfg.Output.Format),
		Schema:      states[0].Schema(),
		Compression: cfg.Output.Compression,
	}

	var w columnar.Writer
	if cfg.Output.Path == "" || cfg.Output.Path == "-" {
		w, err = columnar.NewWriter(stdoutSink{stdout}, wcfg)
	} else {
		w, err = columnar.Create(cfg.Output.Path, wcfg)
	}
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err == nil {
			log.Info("wrote results",
				zap.String("path", cfg.Output.Path),
				zap.String("format", cfg.Output.Format),
				zap.Int64("rows", w.RowsWritten()))
		}
	}()

	for _, rec := range states {
		if rec.NumRows() == 0 {
			continue
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// startProfiling starts the profiles requested with --profile and returns
// the function that stops them.
func startProfiling(ctx context.Context, cmd *cobra.Command, log *zap.Logger) (func(), error) {
	list, _ := cmd.Flags().GetString("profile")
	types, err := profiling.ParseTypes(list)
	if err != nil || len(types) == 0 {
		return func() {}, err
	}

	pcfg := profiling.DefaultProfileConfig()
	pcfg.Types = types
	pcfg.OutputDir, _ = cmd.Flags().GetString("profile-dir")
	profiler := profiling.NewProfiler(pcfg, log)
	if err := profiler.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		if _, err := profiler.Stop(); err != nil {
			log.Warn("failed to save profiles", zap.Error(err))
		}
	}, nil
}

func serveMetrics(addr string, log *zap.Logger) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv.Shutdown
}
