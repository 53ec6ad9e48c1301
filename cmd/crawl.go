package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/law-notes-crawler/internal/crawler"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "crawl <law-id>",
		Short: "Crawls a law and the laws it cites",
		Long: `Renders the root law as a Markdown note and follows its citations
breadth-first. Laws beyond --depth are linked but not fetched; their
references are written to the unresolved log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCommand(cmd, args[0], title)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&title, "title", "", "title of the root law, used until the page is fetched")
	flags.Int("depth", 1, "maximum citation depth to fetch")
	flags.String("existing", "", "what to do with notes that already exist (skip, overwrite)")
	flags.Bool("auto-update", false, "look up titles of cited laws missing from the registry before rendering")
	flags.String("mode", "", "page source (headless, static, api, auto)")
	flags.Bool("serve", false, "serve status and metrics while crawling")
	bindFlag(cmd, "crawl.max_depth", "depth")
	bindFlag(cmd, "crawl.existing", "existing")
	bindFlag(cmd, "crawl.auto_update", "auto-update")
	bindFlag(cmd, "scraper.mode", "mode")
	bindFlag(cmd, "server.enabled", "serve")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, rootID, title string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	rootID = strings.TrimSpace(rootID)
	if rootID == "" {
		return errors.New("law id is empty")
	}

	summary, err := appInstance.Crawl(cmd.Context(), rootID, title)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			appInstance.Logger().Warn("crawl interrupted", zap.String("root_id", rootID))
		}
		return fmt.Errorf("crawl %s: %w", rootID, err)
	}
	return writeSummary(cmd.OutOrStdout(), summary)
}

func writeSummary(w io.Writer, s crawler.Summary) error {
	md := markdown.NewMarkdown(w)
	md.H2("Crawl " + s.RootID)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", s.RunID},
			{"Visited", strings.Join(s.Order, ", ")},
			{"Fetched", strconv.Itoa(s.Fetched)},
			{"Skipped existing", strconv.Itoa(s.Skipped)},
			{"Dropped", strconv.Itoa(s.Dropped)},
			{"Registered", strconv.Itoa(s.Registered)},
			{"Unresolved (new)", fmt.Sprintf("%d (%d)", s.Recorded, s.Unresolved)},
			{"Duration", s.Duration.Round(time.Millisecond).String()},
		},
	})
	if err := md.Build(); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
