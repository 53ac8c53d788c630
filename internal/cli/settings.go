package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "settings",
		Short:         "Show or change store settings",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, showSettings)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "set-owner <uuid>",
		Short:         "Link the store to a user",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env, out *OutputFormatter) error {
				if err := e.app.SetOwnerUUID(ctx, args[0]); err != nil {
					return out.Fail(ExitFailure, "set owner", err)
				}
				return showSettings(ctx, e, out)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "set-share <true|false>",
		Short:         "Toggle collection sharing",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			share, err := strconv.ParseBool(args[0])
			if err != nil {
				return newFormatter(rootOpts, cmd).Fail(ExitCommandError, "set share", err)
			}
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env, out *OutputFormatter) error {
				if err := e.app.SetShareCollection(ctx, share); err != nil {
					return out.Fail(ExitFailure, "set share", err)
				}
				return showSettings(ctx, e, out)
			})
		},
	})

	return cmd
}

func showSettings(ctx context.Context, e *env, out *OutputFormatter) error {
	st, err := e.app.Settings(ctx)
	if err != nil {
		return out.Fail(ExitFailure, "settings", err)
	}
	return out.Emit(st, func(w io.Writer) {
		fmt.Fprintf(w, "owner    %s\n", ownerLabel(st.OwnerUUID))
		fmt.Fprintf(w, "sharing  %t\n", st.ShareCollection)
	})
}
