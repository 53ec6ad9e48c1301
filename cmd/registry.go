package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/law-notes-crawler/internal/egov"
)

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspects and maintains the law registry",
	}
	cmd.AddCommand(newRegistryRefreshCmd(), newRegistryGetCmd())
	return cmd
}

func newRegistryRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fills missing and fallback titles from the e-Gov law list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := egov.Refresh(cmd.Context(), appInstance.API(), appInstance.Registry(), time.Now().UTC())
			if err != nil {
				return fmt.Errorf("refresh registry: %w", err)
			}
			appInstance.Logger().Info("registry refreshed",
				zap.Int("pages", res.Pages),
				zap.Int("seen", res.Seen),
				zap.Int("updated", res.Updated),
				zap.Bool("saved", res.Saved),
			)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d laws seen, %d entries updated\n", res.Seen, res.Updated)
			return err
		},
	}
}

func newRegistryGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <law-id>",
		Short: "Prints the registry entry of a law",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			reg, err := appInstance.Registry().Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load registry: %w", err)
			}
			entry, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("law %s is not registered", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(struct {
				ID       string `json:"law_id"`
				Fallback bool   `json:"fallback"`
				Entry    any    `json:"entry"`
			}{args[0], entry.IsFallbackFor(args[0]), entry})
		},
	}
}
