package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/kittclouds/leakr/internal/app"
	"github.com/kittclouds/leakr/internal/snapshot"
	"github.com/kittclouds/leakr/internal/syncer"
)

// SyncOptions holds sync command flags.
type SyncOptions struct {
	KeepLocal bool
	Accept    string
	Push      bool
}

type syncOutput struct {
	Status   syncer.Status `json:"status"`
	Uploaded string        `json:"uploaded,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local database with the storage service",
		Long: `Compare the local snapshot with the ones stored for the owner. A newer
remote is imported. Diverged histories are a conflict that needs
--keep-local (upload the local database) or --accept <filename>.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.KeepLocal && opts.Accept != "" {
				return newFormatter(rootOpts, cmd).Fail(ExitCommandError, "sync",
					errors.New("--keep-local and --accept are mutually exclusive"))
			}
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env, out *OutputFormatter) error {
				return runSync(ctx, e, out, opts)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.KeepLocal, "keep-local", false, "on conflict, keep and upload the local database")
	cmd.Flags().StringVar(&opts.Accept, "accept", "", "on conflict, import this remote snapshot")
	cmd.Flags().BoolVar(&opts.Push, "push", false, "upload the local database once in sync")

	return cmd
}

func runSync(ctx context.Context, e *env, out *OutputFormatter, opts *SyncOptions) error {
	lock := flock.New(e.lockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return out.Fail(ExitFailure, "sync", fmt.Errorf("acquire lock: %w", err))
	}
	if !locked {
		return out.Fail(ExitFailure, "sync", errors.New("another sync is in progress"))
	}
	defer func() { _ = lock.Unlock() }()

	st, err := e.app.Sync(ctx)
	if errors.Is(err, app.ErrSyncDisabled) {
		return out.Fail(ExitCommandError, "sync", err)
	}
	if err != nil {
		return out.Fail(ExitFailure, "sync", err)
	}

	push := opts.Push
	if st.State == syncer.StateConflict {
		switch {
		case opts.KeepLocal:
			if st, err = e.app.KeepLocal(); err != nil {
				return out.Fail(ExitFailure, "keep local", err)
			}
			push = true
		case opts.Accept != "":
			if st, err = e.app.AcceptRemote(ctx, opts.Accept); err != nil {
				return out.Fail(ExitFailure, "accept remote", err)
			}
		default:
			_ = out.Emit(syncOutput{Status: st}, func(w io.Writer) { printSyncStatus(w, st) })
			return WrapExitError(ExitFailure, "sync conflict", errors.New("rerun with --keep-local or --accept <filename>"))
		}
	}

	res := syncOutput{Status: st}
	if push && st.State == syncer.StateResolved {
		snap, err := e.app.ExportSnapshot(ctx)
		if err != nil {
			return out.Fail(ExitFailure, "push", err)
		}
		if err := e.app.Remote.Upload(ctx, snap.Info.Filename, snap.Data); err != nil {
			return out.Fail(ExitFailure, "push", err)
		}
		e.log.Info("uploaded snapshot", "file", snap.Info.Filename, "size", len(snap.Data))
		res.Uploaded = snap.Info.Filename
	}

	return out.Emit(res, func(w io.Writer) {
		printSyncStatus(w, st)
		if res.Uploaded != "" {
			fmt.Fprintf(w, "%s uploaded %s\n", okMark("✓"), res.Uploaded)
		}
	})
}

func printSyncStatus(w io.Writer, st syncer.Status) {
	mark := okMark("✓")
	if st.State == syncer.StateConflict || st.State == syncer.StateError {
		mark = warnMark("!")
	}
	fmt.Fprintf(w, "%s sync %s", mark, st.State)
	if st.Message != "" {
		fmt.Fprintf(w, ": %s", st.Message)
	}
	fmt.Fprintln(w)
	if st.Local != nil {
		fmt.Fprintf(w, "  local   %s\n", describeSnapshot(*st.Local))
	}
	if st.Imported != nil {
		fmt.Fprintf(w, "  imported %s\n", describeSnapshot(*st.Imported))
	}
	if st.State == syncer.StateConflict {
		for _, r := range st.Remotes {
			fmt.Fprintf(w, "  remote  %s\n", describeSnapshot(r))
			fmt.Fprintf(w, "          %s\n", dim(r.Filename))
		}
	}
}

func describeSnapshot(info snapshot.Info) string {
	return fmt.Sprintf("iteration %d, %s (%s)", info.Iteration,
		humanize.Time(info.Timestamp), info.Timestamp.Format(time.RFC3339))
}
