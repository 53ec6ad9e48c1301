package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/law-notes-crawler/internal/egov"
)

func newSearchCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <title>",
		Short: "Lists laws whose title matches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			candidates, err := appInstance.API().SearchLaws(cmd.Context(), query)
			if err != nil {
				return fmt.Errorf("search %q: %w", query, err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(candidates)
			}
			return writeCandidates(cmd.OutOrStdout(), query, candidates)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print candidates as JSON")
	return cmd
}

func writeCandidates(w io.Writer, query string, candidates []egov.Candidate) error {
	md := markdown.NewMarkdown(w)
	if len(candidates) == 0 {
		md.PlainTextf("no laws match %q", query)
		return md.Build()
	}
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []string{c.LawID, c.LawNum, c.Title, c.PromulgationDate})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Law ID", "Number", "Title", "Promulgated"},
		Rows:   rows,
	})
	return md.Build()
}
