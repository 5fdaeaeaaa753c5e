package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/utils"
	"github.com/srand/fleet/pkg/worker"
	"golang.org/x/sync/errgroup"
)

var mockWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Play simulated games for the scheduler",
	Run: func(cmd *cobra.Command, args []string) {
		count, _ := cmd.Flags().GetInt("count")

		base := worker.WorkerConfig{}
		if err := utils.UnmarshalConfig(viper.GetViper(), &base); err != nil {
			log.Fatal(err)
		}
		base.SchedulerGrpcUri = configData.SchedulerUri
		base.Grpc = configData.Grpc
		base.SetDefaults()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		group, ctx := errgroup.WithContext(ctx)

		for i := range count {
			config := base
			if count > 1 {
				config.WorkerId = fmt.Sprintf("%s-%d", base.WorkerId, i)
			}
			if err := config.Validate(); err != nil {
				log.Fatal(err)
			}
			config.Log()

			client, conn, err := worker.NewWorkerClient(&config)
			if err != nil {
				log.Fatal(err)
			}
			defer conn.Close()

			player := worker.NewRandomPlayer(config.Concurrency, config.Elo, config.DrawRatio)
			defer player.Close()

			w := worker.NewWorker(client, player, &config)
			group.Go(func() error {
				err := w.Run(ctx)
				stats := w.Statistics()
				log.Infof("Worker %s played %d games in %d tasks", config.WorkerId, stats.Games, stats.Tasks)
				return err
			})
		}

		if err := group.Wait(); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	flags := mockWorkerCmd.Flags()
	flags.IntP("count", "n", 1, "Number of simulated workers")
	flags.StringP("run", "r", "", "Only play tasks of this run")
	flags.IntP("concurrency", "c", 0, "Games played in parallel per worker")
	flags.Int("max-tasks", 0, "Exit after this many tasks")
	flags.Float64("elo", 0, "Simulated Elo advantage of the new engine")
	flags.Float64("draw-ratio", 0.4, "Share of simulated games ending in a draw")

	viper.BindPFlag("run_id", flags.Lookup("run"))
	viper.BindPFlag("concurrency", flags.Lookup("concurrency"))
	viper.BindPFlag("max_tasks", flags.Lookup("max-tasks"))
	viper.BindPFlag("elo", flags.Lookup("elo"))
	viper.BindPFlag("draw_ratio", flags.Lookup("draw-ratio"))

	mockCmd.AddCommand(mockWorkerCmd)
}
