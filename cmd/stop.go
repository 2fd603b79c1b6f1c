package cmd

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/outreachlabs/formpilot/internal/observability"
	"github.com/outreachlabs/formpilot/internal/repository"
)

// stopCmd raises the cooperative stop flag on a running campaign. The
// processor honors it at the next target boundary; the in-flight target
// finishes normally.
var stopCmd = &cobra.Command{
	Use:   "stop <campaign-id>",
	Short: "Request a running campaign to stop at the next target boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		campaignID, err := uuid.Parse(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		pool, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := repository.NewCampaignRepository(pool).RequestStop(ctx, campaignID); err != nil {
			return err
		}
		observability.GetLogger().Info("Stop requested.",
			zap.String("campaign_id", campaignID.String()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
