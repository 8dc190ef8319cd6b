package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridlake-io/gridlake/internal/convert"
	"github.com/gridlake-io/gridlake/internal/ingest"
	"github.com/gridlake-io/gridlake/internal/model"
)

// fileSpec is one positional argument of the ingest command:
// TABLE:OPERATION:PATH. DELETE only uses the base name of PATH.
type fileSpec struct {
	table string
	op    model.Operation
	path  string
}

func (s fileSpec) fileName() string {
	return filepath.Base(s.path)
}

func parseFileSpec(arg string) (fileSpec, error) {
	parts := strings.SplitN(arg, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return fileSpec{}, fmt.Errorf("invalid file %q, expected TABLE:OPERATION:PATH", arg)
	}
	op, err := model.ParseOperation(parts[1])
	if err != nil {
		return fileSpec{}, err
	}
	if !op.Ingestible() {
		return fileSpec{}, fmt.Errorf("invalid file %q: operation %s cannot be ingested", arg, op)
	}
	return fileSpec{table: parts[0], op: op, path: parts[2]}, nil
}

func parseFileSpecs(args []string) ([]fileSpec, error) {
	specs := make([]fileSpec, 0, len(args))
	var errList []error
	for _, a := range args {
		s, err := parseFileSpec(a)
		if err != nil {
			errList = append(errList, err)
			continue
		}
		specs = append(specs, s)
	}
	return specs, errors.Join(errList...)
}

type ingestOptions struct {
	clientID  string
	modelID   string
	processID string
	noProfile bool
}

func newIngestCmd(g *globalOptions) *cobra.Command {
	var o ingestOptions
	cmd := &cobra.Command{
		Use:   "ingest TABLE:OPERATION:PATH...",
		Short: "Ingest a batch of files",
		Long: `Ingest a batch of delimited files for one client and model.

Each argument names the target table, the operation (ADD, APPEND, REPLACE
or DELETE) and the local file. The batch is rejected as a whole when any
entry is illegal; accepted files succeed or fail independently.`,
		Example: "  gridlake ingest --client acme --model forecast sales:add:./jan.csv stores:add:./stores.csv",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := parseFileSpecs(args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runIngest(ctx, g, o, specs)
		},
	}
	cmd.Flags().StringVar(&o.clientID, "client", "", "Client identifier (required)")
	cmd.Flags().StringVar(&o.modelID, "model", "", "Model identifier (required)")
	cmd.Flags().StringVar(&o.processID, "process-id", "", "Process identifier (default: assigned by the tracker)")
	cmd.Flags().BoolVar(&o.noProfile, "no-profile", false, "Skip the profiling pass and infer column types from a sample")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func runIngest(ctx context.Context, g *globalOptions, o ingestOptions, specs []fileSpec) error {
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.ingestService(ctx)
	if err != nil {
		return err
	}
	delim, err := delimiter(a.cfg.Ingest.Delimiter)
	if err != nil {
		return err
	}

	var stats []model.FileStats
	if !o.noProfile {
		if stats, err = profileFiles(specs, delim); err != nil {
			return err
		}
	}

	files, closeAll, err := openFiles(specs)
	if err != nil {
		return err
	}
	defer closeAll()

	res, err := svc.Ingest(ctx, ingest.Request{
		ClientID:  o.clientID,
		ModelID:   o.modelID,
		ProcessID: o.processID,
		FileStats: stats,
		FileInfo:  files,
	})
	if err != nil {
		return err
	}
	if err := writeJSON(g.out, res); err != nil {
		return err
	}
	if res.Status == ingest.StatusFailed {
		return fmt.Errorf("no file was ingested")
	}
	return nil
}

// profileFiles computes statistics for every file that carries content.
func profileFiles(specs []fileSpec, delim rune) ([]model.FileStats, error) {
	var stats []model.FileStats
	for _, s := range specs {
		if !s.op.ReadsStream() {
			continue
		}
		st, err := profileFile(s, delim)
		if err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, nil
}

func profileFile(s fileSpec, delim rune) (model.FileStats, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return model.FileStats{}, err
	}
	defer f.Close()
	st, _, err := convert.Profile(f, s.table, s.fileName(), convert.ProfileOptions{Delimiter: delim})
	if err != nil {
		return model.FileStats{}, fmt.Errorf("profile %s: %w", s.path, err)
	}
	return st, nil
}

func openFiles(specs []fileSpec) ([]model.FileInfo, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}
	files := make([]model.FileInfo, 0, len(specs))
	for _, s := range specs {
		info := model.FileInfo{TableName: s.table, FileName: s.fileName(), Operation: s.op}
		if s.op.ReadsStream() {
			f, err := os.Open(s.path)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, f)
			info.Stream = f
		}
		files = append(files, info)
	}
	return files, closeAll, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
