package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one forced news refresh and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			shown, err := appInstance.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			appInstance.Logger().Info("refresh finished", zap.Int("displayable", shown))
			fmt.Fprintf(cmd.OutOrStdout(), "%d articles displayable\n", shown)
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var target int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store feed articles until the target count is reached",
		Long: `Fetches the feeds and stores new articles, without explanations, until
the store holds --target articles. Foreign articles are translated first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			added, err := appInstance.Seed(cmd.Context(), target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d articles added\n", added)
			return nil
		},
	}
	cmd.Flags().IntVar(&target, "target", 0, "total articles wanted (default ingest.seed_target)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print storage counts as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			st, err := appInstance.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("read status: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
}
