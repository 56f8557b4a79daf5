package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDocsCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List or delete the owner's documents",
	}
	cmd.AddCommand(newDocsListCmd(st), newDocsDeleteCmd(st))
	return cmd
}

func newDocsListCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the owner's documents, newest first",
		Args:  cobra.NoArgs,
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

			docs, err := env.Services.Documents.List(cmd.Context(), owner)
			if err != nil {
				return err
			}

			if st.jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(docs)
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILENAME\tCHUNKS\tSIZE\tCREATED")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					d.ID, truncate(d.Filename, 40), d.ChunkCount, formatSize(d.SizeBytes), formatTime(d.CreatedAt))
			}
			return w.Flush()
		},
	}
}

func newDocsDeleteCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents and all of their chunks",
		Args:  cobra.MinimumNArgs(1),
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

			for _, id := range args {
				if err := env.Services.Documents.Delete(cmd.Context(), owner, id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}
