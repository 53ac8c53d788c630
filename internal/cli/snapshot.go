package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kittclouds/leakr/internal/snapshot"
)

type snapshotOutput struct {
	Path string        `json:"path"`
	Info snapshot.Info `json:"info"`
	Size int           `json:"size"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [dir-or-file]",
		Short: "Write the database to a snapshot file",
		Long: `Serialize the database without changing it. With a directory (or no
argument) the file gets its canonical snapshot name.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) == 1 {
				target = args[0]
			}
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env, out *OutputFormatter) error {
				snap, err := e.app.ExportSnapshot(ctx)
				if err != nil {
					return out.Fail(ExitFailure, "export", err)
				}
				path := target
				if fi, err := os.Stat(target); err == nil && fi.IsDir() {
					path = filepath.Join(target, snap.Info.Filename)
				}
				if err := os.WriteFile(path, snap.Data, 0o600); err != nil {
					return out.Fail(ExitFailure, "export", err)
				}
				res := snapshotOutput{Path: path, Info: snap.Info, Size: len(snap.Data)}
				return out.Emit(res, func(w io.Writer) {
					fmt.Fprintf(w, "%s exported %s to %s\n", okMark("✓"), humanize.Bytes(uint64(res.Size)), path)
				})
			})
		},
	}
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the database with a snapshot file",
		Long: `Validate and migrate the snapshot, then replace the local database
with it. A snapshot that cannot be opened or migrated leaves the
local database untouched.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return newFormatter(rootOpts, cmd).Fail(ExitCommandError, "import", err)
			}
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env, out *OutputFormatter) error {
				if err := e.app.ImportSnapshot(ctx, data); err != nil {
					return out.Fail(ExitFailure, "import", err)
				}
				info, err := e.app.Persist.LocalInfo(ctx)
				if err != nil {
					return out.Fail(ExitFailure, "import", err)
				}
				res := snapshotOutput{Path: args[0], Size: len(data)}
				if info != nil {
					res.Info = *info
				}
				return out.Emit(res, func(w io.Writer) {
					fmt.Fprintf(w, "%s imported %s (iteration %d)\n", okMark("✓"), humanize.Bytes(uint64(res.Size)), res.Info.Iteration)
				})
			})
		},
	}
}
