package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/outreachlabs/formpilot/internal/model"
	"github.com/outreachlabs/formpilot/internal/observability"
	"github.com/outreachlabs/formpilot/internal/queue"
	"github.com/outreachlabs/formpilot/internal/repository"
)

var (
	enqueueTargetsPath string
	enqueueMessage     string
	enqueueAccountID   string
)

// enqueueCmd creates a campaign and hands it to the worker fleet. The
// hand-off is fire and forget; progress is read back from the database.
var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Create a campaign and publish it to the worker queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		targets, err := loadTargets(enqueueTargetsPath)
		if err != nil {
			return err
		}
		if enqueueMessage == "" {
			return fmt.Errorf("--message is required")
		}
		accountID, err := uuid.Parse(enqueueAccountID)
		if err != nil {
			return err
		}

		ctx := context.Background()
		pool, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		campaign := &model.Campaign{
			ID:          uuid.New(),
			AccountID:   accountID,
			Message:     enqueueMessage,
			TargetCount: len(targets),
		}
		if err := repository.NewCampaignRepository(pool).Create(ctx, campaign); err != nil {
			return err
		}
		if err := repository.NewSubmissionRepository(pool).CreateBatch(ctx, campaign.ID, targets); err != nil {
			return err
		}

		q, err := queue.Connect(appCfg.Queue, logger)
		if err != nil {
			return err
		}
		defer q.Close()

		if err := q.Publish(campaign.ID); err != nil {
			return err
		}
		logger.Info("Campaign enqueued.",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Int("targets", len(targets)))
		fmt.Println(campaign.ID.String())
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueTargetsPath, "targets", "", "file with one target URL per line")
	enqueueCmd.Flags().StringVar(&enqueueMessage, "message", "", "campaign message")
	enqueueCmd.Flags().StringVar(&enqueueAccountID, "account", uuid.Nil.String(), "owning account id")
	enqueueCmd.MarkFlagRequired("targets")
	rootCmd.AddCommand(enqueueCmd)
}
