package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gridlake-io/gridlake/internal/model"
)

func newCollisionsCmd(g *globalOptions) *cobra.Command {
	var clientID, modelID string
	cmd := &cobra.Command{
		Use:   "collisions TABLE:PATH...",
		Short: "Check files against the catalogue before uploading",
		Long: `Profile local files and compare them with the files already catalogued
for the model. Reports duplicate columns that block the upload and, for
each file, the collision case and the operations the user may choose.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := make([]fileSpec, 0, len(args))
			for _, arg := range args {
				table, path, ok := strings.Cut(arg, ":")
				if !ok || table == "" || path == "" {
					return fmt.Errorf("invalid file %q, expected TABLE:PATH", arg)
				}
				specs = append(specs, fileSpec{table: table, op: model.OperationAdd, path: path})
			}

			ctx := cmd.Context()
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
			stats, err := profileFiles(specs, delim)
			if err != nil {
				return err
			}
			res, err := svc.CheckCollisions(ctx, clientID, modelID, stats)
			if err != nil {
				return err
			}
			if err := writeJSON(g.out, res); err != nil {
				return err
			}
			if res.Blocked() {
				return res.Duplicates.Err()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "Client identifier (required)")
	cmd.Flags().StringVar(&modelID, "model", "", "Model identifier (required)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
