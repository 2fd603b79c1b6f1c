package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/outreachlabs/formpilot/internal/model"
	"github.com/outreachlabs/formpilot/internal/observability"
	"github.com/outreachlabs/formpilot/internal/repository"
)

var (
	runProfilePath string
	runTargetsPath string
	runMessage     string
	runAccountID   string
)

// runCmd creates a campaign from a targets file and processes it in this
// process, without going through the queue.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a campaign from a targets file and run it to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		profile, err := loadProfile(runProfilePath)
		if err != nil {
			return err
		}
		targets, err := loadTargets(runTargetsPath)
		if err != nil {
			return err
		}
		accountID, err := uuid.Parse(runAccountID)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		message := runMessage
		if message == "" {
			message = profile.Message
		}
		campaign := &model.Campaign{
			ID:          uuid.New(),
			AccountID:   accountID,
			Message:     message,
			TargetCount: len(targets),
		}
		campaigns := repository.NewCampaignRepository(pool)
		if err := campaigns.Create(ctx, campaign); err != nil {
			return err
		}
		if err := repository.NewSubmissionRepository(pool).CreateBatch(ctx, campaign.ID, targets); err != nil {
			return err
		}
		logger.Info("Campaign created.",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Int("targets", len(targets)))

		proc, manager := buildProcessor(pool, logger)
		defer manager.Shutdown()

		return proc.Run(ctx, campaign.ID, profile)
	},
}

func init() {
	runCmd.Flags().StringVar(&runProfilePath, "profile", "profile.yaml", "sender profile YAML file")
	runCmd.Flags().StringVar(&runTargetsPath, "targets", "", "file with one target URL per line")
	runCmd.Flags().StringVar(&runMessage, "message", "", "campaign message (defaults to the profile message)")
	runCmd.Flags().StringVar(&runAccountID, "account", uuid.Nil.String(), "owning account id")
	runCmd.MarkFlagRequired("targets")
	rootCmd.AddCommand(runCmd)
}
