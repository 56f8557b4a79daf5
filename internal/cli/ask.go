package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(st *rootState) *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the owner's documents",
		Long: `Embed the question, retrieve the owner's most similar chunks and ask the
chat model to answer from them only.

Examples:
  copilotctl ask "What spacing scale do we use?" --owner user-42
  copilotctl ask "Primary color?" --owner user-42 --sources`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := st.requireOwner()
			if err != nil {
				return err
			}
			env, err := st.open(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			answer, err := env.Services.Query.Answer(cmd.Context(), owner, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if st.jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}

			fmt.Fprintln(out, answer.Text)
			if showSources && len(answer.Sources) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				for _, s := range answer.Sources {
					fmt.Fprintf(out, "  %.3f  %s #%d  %s\n",
						s.Similarity, s.Metadata["filename"], s.Ordinal, truncate(oneLine(s.Content), 60))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSources, "sources", false, "list the chunks the answer was grounded on")
	return cmd
}
