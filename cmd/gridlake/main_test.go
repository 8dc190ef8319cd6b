package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridlake-io/gridlake/internal/model"
	"github.com/gridlake-io/gridlake/internal/query"
)

func TestParseFileSpec(t *testing.T) {
	tests := []struct {
		arg     string
		want    fileSpec
		wantErr bool
	}{
		{arg: "sales:add:./data/jan.csv", want: fileSpec{table: "sales", op: model.OperationAdd, path: "./data/jan.csv"}},
		{arg: "sales:Append:C:/data/feb.csv", want: fileSpec{table: "sales", op: model.OperationAppend, path: "C:/data/feb.csv"}},
		{arg: "sales:delete:jan.csv", want: fileSpec{table: "sales", op: model.OperationDelete, path: "jan.csv"}},
		{arg: "sales:cancel:jan.csv", wantErr: true},
		{arg: "sales:merge:jan.csv", wantErr: true},
		{arg: "sales:add", wantErr: true},
		{arg: ":add:jan.csv", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseFileSpec(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFileSpecsReportsEveryBadArgument(t *testing.T) {
	_, err := parseFileSpecs([]string{"a:add:x.csv", "b:bogus:y.csv", "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
	assert.Contains(t, err.Error(), `"c"`)
}

func TestDelimiter(t *testing.T) {
	for in, want := range map[string]rune{"": ',', ",": ',', "\t": '\t', ";": ';', "|": '|'} {
		got, err := delimiter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := delimiter(";;")
	assert.Error(t, err)
}

func TestProfileAndOpenFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jan.csv")
	require.NoError(t, os.WriteFile(path, []byte("region,amount\neast,1.5\nwest,2\n"), 0o644))

	specs := []fileSpec{
		{table: "sales", op: model.OperationAdd, path: path},
		{table: "sales", op: model.OperationDelete, path: "old.csv"},
	}
	stats, err := profileFiles(specs, ',')
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "jan.csv", stats[0].FileName)
	assert.Equal(t, int64(2), stats[0].NumberOfRows)

	files, closeAll, err := openFiles(specs)
	require.NoError(t, err)
	defer closeAll()
	require.Len(t, files, 2)
	assert.NotNil(t, files[0].Stream)
	assert.Nil(t, files[1].Stream)
	assert.Equal(t, "old.csv", files[1].FileName)

	body, err := io.ReadAll(files[0].Stream)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "region,amount"))
}

func TestOpenFilesMissing(t *testing.T) {
	_, _, err := openFiles([]fileSpec{{table: "t", op: model.OperationAdd, path: filepath.Join(t.TempDir(), "nope.csv")}})
	assert.Error(t, err)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, []query.Row{
		{"b": "x", "a": int64(1)},
		{"a": int64(2), "b": nil},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"A", "B"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "x"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2"}, strings.Fields(lines[2]))

	buf.Reset()
	require.NoError(t, writeTable(&buf, nil))
	assert.Equal(t, "(no rows)\n", buf.String())
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	root := newRootCmd(&globalOptions{out: &buf})
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "gridlake version dev")
}

func TestIngestRequiresClientAndModel(t *testing.T) {
	root := newRootCmd(&globalOptions{out: io.Discard})
	root.SetArgs([]string{"ingest", "sales:add:jan.csv"})
	root.SetErr(io.Discard)
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridlake.yaml")
	require.NoError(t, os.WriteFile(path, []byte("objectStore:\n  bucket: lake\nmetadata:\n  backend: memory\nquery:\n  backend: duckdb\n"), 0o644))

	o := &globalOptions{configPath: path, logLevel: "debug"}
	cfg, err := o.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "lake", cfg.ObjectStore.Bucket)
	assert.Equal(t, "memory", cfg.Metadata.Backend)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}
