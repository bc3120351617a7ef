package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const users = "user,age\nalice,31\nbob,27\nalice,31\ncarol,45\nbob,28\n"

func TestGroupByToStdout(t *testing.T) {
	input := writeFile(t, "users.csv", users)

	out, err := execute(t, "groupby", "--input", input, "--column", "user",
		"--partitions", "1", "--log-level", "error")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{"value,count", "alice,2", "bob,2", "carol,1"}, lines)
}

func TestDistinctCount(t *testing.T) {
	input := writeFile(t, "users.csv", users)

	out, err := execute(t, "distinct", "--input", input, "--column", "user",
		"--partitions", "3", "--count", "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestDistinctToFile(t *testing.T) {
	input := writeFile(t, "users.csv", users)
	output := filepath.Join(t.TempDir(), "out.jsonl")

	_, err := execute(t, "distinct", "-i", input, "-c", "user", "-o", output,
		"--output-format", "jsonl", "--partitions", "1", "--log-level", "error")
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
	assert.Contains(t, string(data), `"value":"carol"`)
}

func TestMissingColumn(t *testing.T) {
	input := writeFile(t, "users.csv", users)

	_, err := execute(t, "groupby", "--input", input, "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestLoadConfigPrecedence(t *testing.T) {
	file := writeFile(t, "job.yaml", `
name: nightly
input:
  column: from_file
  format: jsonl
pipeline:
  partitions: 3
  batch_size: 100
`)
	t.Setenv("BYTESMAP_PIPELINE_PARTITIONS", "5")
	t.Setenv("BYTESMAP_INPUT_NULL_VALUES", "NA,null")

	root := newRootCommand()
	cmd, _, err := root.Find([]string{"groupby"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--config", file, "--column", "from_flag", "--large-offsets"}))

	cfg, err := loadConfig(cmd, "group_count")
	require.NoError(t, err)

	assert.Equal(t, "nightly", cfg.Name)
	assert.Equal(t, "from_flag", cfg.Input.Column)
	assert.Equal(t, "jsonl", cfg.Input.Format)
	assert.Equal(t, 5, cfg.Pipeline.Partitions)
	assert.Equal(t, 100, cfg.Pipeline.BatchSize)
	assert.Equal(t, []string{"NA", "null"}, cfg.Input.NullValues)
	assert.True(t, cfg.Map.LargeOffsets)
	assert.True(t, cfg.Spill.Enabled)
}

func TestBench(t *testing.T) {
	report, err := runBench(context.Background(), benchOptions{
		Operator:     "groupby",
		Rows:         5000,
		Distinct:     300,
		ValueLength:  6,
		NullFraction: 0.1,
		BatchSize:    1000,
		Partitions:   4,
		Seed:         7,
	})
	require.NoError(t, err)
	// 300 values at most, plus the null group
	assert.LessOrEqual(t, report.Groups, int64(301))
	assert.Greater(t, report.Groups, int64(200))
	assert.Greater(t, report.InputBytes, int64(0))

	out, err := execute(t, "bench", "--rows", "2000", "--distinct", "50", "--operator", "distinct", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"operator": "distinct"`)
	assert.Contains(t, out, `"groups"`)

	_, err = runBench(context.Background(), benchOptions{Operator: "median", Rows: 1, Distinct: 1, ValueLength: 1, BatchSize: 1})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestFormatsAndVersion(t *testing.T) {
	out, err := execute(t, "formats")
	require.NoError(t, err)
	for _, name := range []string{"csv", "jsonl", "avro", "arrow", "parquet"} {
		assert.Contains(t, out, name)
	}

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "bytesmap v"+version)
}
