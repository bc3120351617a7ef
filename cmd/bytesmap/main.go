package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/bytesmap/pkg/formats/columnar"
)

var version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "bytesmap",
		Short: "bytesmap - distinct and group counts over string and binary columns",
		Long: `bytesmap reads one string or binary column from a CSV, JSON Lines, Avro,
Arrow IPC or Parquet file and computes its distinct values or the number of
rows per value. Work is hash partitioned across CPUs and partial state spills
to disk when the memory limit is reached.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "Path to a YAML job configuration")
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-encoding", "console", "Log encoding (console, json)")
	root.PersistentFlags().String("metrics-address", "", "Serve Prometheus metrics on this address, e.g. :9090")
	root.PersistentFlags().Bool("trace", false, "Export trace spans to standard error")
	root.PersistentFlags().String("profile", "", "Profiles to capture (cpu, memory, block, mutex, goroutine, trace, all)")
	root.PersistentFlags().String("profile-dir", "./profiles", "Directory for captured profiles")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "bytesmap v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "formats",
		Short: "List supported file formats",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, f := range []columnar.Format{columnar.CSV, columnar.JSONL, columnar.Avro, columnar.Arrow, columnar.Parquet} {
				info := columnar.GetFormatInfo(f)
				mode := "read"
				if info.Writable {
					mode = "read/write"
				}
				fmt.Fprintf(out, "  %-8s %-10s %-6s %s\n", info.Format, mode, info.FileExtension, info.Name)
			}
		},
	})

	root.AddCommand(newJobCommand(distinctJob))
	root.AddCommand(newJobCommand(groupCountJob))
	root.AddCommand(newBenchCommand())
	return root
}
