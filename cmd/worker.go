package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/outreachlabs/formpilot/internal/observability"
	"github.com/outreachlabs/formpilot/internal/queue"
)

var workerProfilePath string

// workerCmd consumes campaign jobs from the queue and processes them.
// Targets within a campaign stay strictly sequential; the worker count only
// controls how many campaigns run side by side.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume campaign jobs from the queue and process them",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		profile, err := loadProfile(workerProfilePath)
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

		q, err := queue.Connect(appCfg.Queue, logger)
		if err != nil {
			return err
		}
		defer q.Close()

		proc, manager := buildProcessor(pool, logger)
		defer manager.Shutdown()

		workers := appCfg.Processor.Workers
		logger.Info("Worker started.", zap.Int("workers", workers))

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				return q.Consume(gctx, func(ctx context.Context, campaignID uuid.UUID) error {
					return proc.Run(ctx, campaignID, profile)
				})
			})
		}

		err = g.Wait()
		if ctx.Err() != nil {
			logger.Info("Worker shutting down.")
			return nil
		}
		return err
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerProfilePath, "profile", "profile.yaml", "sender profile YAML file")
	rootCmd.AddCommand(workerCmd)
}
