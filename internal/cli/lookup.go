package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kittclouds/leakr/internal/store"
	"github.com/kittclouds/leakr/pkg/resolver"
)

type resolveOutput struct {
	Query        string         `json:"query"`
	Creator      *store.Creator `json:"creator,omitempty"`
	Tier         string         `json:"tier"`
	Score        float64        `json:"score,omitempty"`
	LearnedAlias bool           `json:"learnedAlias,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <query>",
		Short: "Resolve a name to a creator",
		Long: `Run the resolution cascade (exact name, alias, substring, prefix,
fuzzy) for a query. A fuzzy hit learns the query as a new alias.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env, out *OutputFormatter) error {
				r, err := e.app.Resolve(ctx, query)
				if err != nil {
					return out.Fail(ExitFailure, "resolve", err)
				}
				res := resolveOutput{
					Query:        query,
					Creator:      r.Creator,
					Tier:         r.Tier.String(),
					Score:        r.Score,
					LearnedAlias: r.LearnedAlias,
				}
				for _, w := range r.Warnings {
					res.Warnings = append(res.Warnings, w.Error())
				}
				return out.Emit(res, func(w io.Writer) {
					printResolution(w, r)
				})
			})
		},
	}
}

func printResolution(w io.Writer, r resolver.Result) {
	if !r.Found() {
		fmt.Fprintf(w, "%s no creator matched\n", warnMark("?"))
	} else {
		fmt.Fprintf(w, "%s %s (#%d) via %s", okMark("✓"), r.Creator.Name, r.Creator.ID, r.Tier)
		if r.Tier == resolver.TierFuzzy {
			fmt.Fprintf(w, " score %.2f", r.Score)
		}
		fmt.Fprintln(w)
		if r.LearnedAlias {
			fmt.Fprintf(w, "  learned alias\n")
		}
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  %s %v\n", warnMark("!"), warn)
	}
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find <url-or-username>",
		Short: "Find the creator behind a profile URL or username",
		Long: `Detect the platform of a pasted URL, extract the username and resolve
it. A resolved creator gets the profile link recorded.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env, out *OutputFormatter) error {
				r, err := e.app.Find(ctx, args[0])
				if err != nil {
					return out.Fail(ExitFailure, "find", err)
				}
				return out.Emit(r, func(w io.Writer) {
					if r.Platform != "" {
						fmt.Fprintf(w, "platform: %s\n", r.Platform)
					}
					if r.Username != "" {
						fmt.Fprintf(w, "username: %s\n", r.Username)
						printResolution(w, r.Resolution)
					}
					if r.ProfileAdded {
						fmt.Fprintf(w, "  profile linked\n")
					}
					if len(r.ContentIDs) > 0 {
						fmt.Fprintf(w, "  %s\n", plural(len(r.ContentIDs), "saved page"))
					}
					if r.Message != "" {
						fmt.Fprintf(w, "  %s\n", dim(r.Message))
					}
				})
			})
		},
	}
}
