package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewCreatorsCommand creates the creators command group.
func NewCreatorsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creators",
		Short: "Manage tracked creators",
	}

	var aliases []string
	add := &cobra.Command{
		Use:           "add <name>",
		Short:         "Add a creator",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env, out *OutputFormatter) error {
				c, err := e.app.AddCreator(ctx, name, aliases)
				if c == nil {
					return out.Fail(ExitFailure, "add creator", err)
				}
				if err != nil {
					// Added, but the database could not be persisted.
					e.log.Warn("creator added but not saved", "error", err)
				}
				return out.Emit(c, func(w io.Writer) {
					fmt.Fprintf(w, "%s added %s (#%d)\n", okMark("✓"), c.Name, c.ID)
				})
			})
		},
	}
	add.Flags().StringSliceVarP(&aliases, "alias", "a", nil, "alias for the creator (repeatable)")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:           "ls",
		Aliases:       []string{"list"},
		Short:         "List creators",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env, out *OutputFormatter) error {
				cs, err := e.app.Store.ListCreators(ctx)
				if err != nil {
					return out.Fail(ExitFailure, "list creators", err)
				}
				return out.Emit(cs, func(w io.Writer) {
					for _, c := range cs {
						flags := ""
						if c.Favorite {
							flags += "★"
						}
						if c.Verified {
							flags += "✓"
						}
						fmt.Fprintf(w, "%4d  %-24s %-3s %s  %s\n", c.ID, c.Name, flags,
							joinNonEmpty(c.Aliases.List, ", "), dim(humanize.Time(c.DateAdded)))
					}
					fmt.Fprintln(w, plural(len(cs), "creator"))
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "rm <id>",
		Short:         "Delete a creator with its saved pages and profiles",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return newFormatter(rootOpts, cmd).Fail(ExitCommandError, "delete creator", err)
			}
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env, out *OutputFormatter) error {
				if err := e.app.DeleteCreator(ctx, id); err != nil {
					return out.Fail(ExitFailure, "delete creator", err)
				}
				return out.Emit(map[string]int64{"deleted": id}, func(w io.Writer) {
					fmt.Fprintf(w, "%s deleted #%d\n", okMark("✓"), id)
				})
			})
		},
	})

	return cmd
}
