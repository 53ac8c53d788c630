package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kittclouds/leakr/internal/snapshot"
	"github.com/kittclouds/leakr/internal/store"
)

type statusOutput struct {
	Version      string         `json:"version"`
	Iteration    int64          `json:"iteration"`
	LastModified time.Time      `json:"lastModified"`
	Settings     store.Settings `json:"settings"`
	Creators     int            `json:"creators"`
	Contents     int            `json:"contents"`
	Snapshot     *snapshot.Info `json:"snapshot,omitempty"`
	Database     string         `json:"database"`
	Sync         bool           `json:"sync"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show schema version, iteration and record counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env, out *OutputFormatter) error {
				res, err := collectStatus(ctx, e)
				if err != nil {
					return out.Fail(ExitFailure, "status", err)
				}
				return out.Emit(res, func(w io.Writer) {
					fmt.Fprintf(w, "schema     %s (iteration %d)\n", res.Version, res.Iteration)
					if !res.LastModified.IsZero() {
						fmt.Fprintf(w, "modified   %s\n", humanize.Time(res.LastModified))
					}
					fmt.Fprintf(w, "owner      %s\n", ownerLabel(res.Settings.OwnerUUID))
					fmt.Fprintf(w, "sharing    %t\n", res.Settings.ShareCollection)
					fmt.Fprintf(w, "records    %s, %s\n", plural(res.Creators, "creator"), plural(res.Contents, "saved page"))
					if res.Snapshot != nil {
						fmt.Fprintf(w, "snapshot   %s\n", res.Snapshot.Filename)
					} else {
						fmt.Fprintf(w, "snapshot   %s\n", dim("not persisted yet"))
					}
					fmt.Fprintf(w, "database   %s\n", res.Database)
				})
			})
		},
	}
}

func collectStatus(ctx context.Context, e *env) (statusOutput, error) {
	res := statusOutput{Database: e.kv.Path(), Sync: e.app.Syncer != nil}
	v, err := e.app.Store.SchemaVersion(ctx)
	if err != nil {
		return res, err
	}
	res.Version, res.Iteration, res.LastModified = v.Version, v.Iteration, v.LastModified

	st, err := e.app.Settings(ctx)
	if err != nil {
		return res, err
	}
	if st != nil {
		res.Settings = *st
	}

	creators, err := e.app.Store.ListCreators(ctx)
	if err != nil {
		return res, err
	}
	res.Creators = len(creators)
	contents, err := e.app.Store.ListContents(ctx)
	if err != nil {
		return res, err
	}
	res.Contents = len(contents)

	if res.Snapshot, err = e.app.Persist.LocalInfo(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func ownerLabel(owner string) string {
	if owner == "" || owner == store.NilOwnerUUID {
		return dim("not linked")
	}
	return owner
}
