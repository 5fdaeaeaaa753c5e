package main

import (
	"context"
	"fmt"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/srand/fleet/pkg/actionlog"
	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/scheduler"
	"github.com/srand/fleet/pkg/utils"
)

var config *Config

var rootCmd = &cobra.Command{
	Use:   "fleetd",
	Short: "Chess engine test fleet scheduler service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		viper.SetEnvPrefix("fleet")
		viper.AutomaticEnv()

		viper.SetConfigName("fleetd.yaml")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/fleet/")
		viper.AddConfigPath("$HOME/.config/fleet")
		viper.AddConfigPath(".")

		viper.ReadInConfig()

		verbosity, err := cmd.Flags().GetCount("verbose")
		if err != nil {
			panic(err)
		}

		switch {
		case verbosity >= 2:
			log.SetLevel(log.TraceLevel)
		case verbosity >= 1:
			log.SetLevel(log.DebugLevel)
		}

		config = &Config{}
		if err := utils.UnmarshalConfig(viper.GetViper(), config); err != nil {
			log.Fatal(err)
		}

		config.SetDefaults()
		config.Scheduler.Primary = scheduler.IsPrimary(config.ListenHttp, config.PrimaryPort)
		if err := config.Validate(); err != nil {
			log.Fatal(err)
		}
		config.Log()
	},
	Run: func(cmd *cobra.Command, args []string) {
		utils.RaiseFileLimit()

		store, err := config.Store.CreateStore()
		if err != nil {
			log.Fatal(err)
		}
		defer store.Close()

		sched := scheduler.NewScheduler(store, config.Scheduler)

		actionsFs, err := config.Actions.CreateFs()
		if err != nil {
			log.Fatal(err)
		}

		actions := actionlog.NewActionLog(&config.Actions, actionsFs)
		sched.AddObserver(actions)

		for _, uri := range config.ListenGrpc {
			go serveGrpc(sched, uri)
		}

		for _, uri := range config.ListenHttp {
			go serveHttp(sched, actions, uri)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Returns after the final flush of cached runs.
		sched.Run(ctx)
		log.Info("Scheduler stopped")
	},
}

func init() {
	rootCmd.Flags().StringSliceP("listen-http", "l", []string{"tcp://:8080"}, "Addresses to listen on for HTTP connections")
	rootCmd.Flags().StringSliceP("listen-grpc", "g", []string{"tcp://:9090"}, "Addresses to listen on for GRPC connections")
	rootCmd.Flags().IntP("primary-port", "p", 0, "HTTP port of the primary instance")
	rootCmd.Flags().CountP("verbose", "v", "Verbosity (repeatable)")

	viper.BindPFlag("listen_grpc", rootCmd.Flags().Lookup("listen-grpc"))
	viper.BindPFlag("listen_http", rootCmd.Flags().Lookup("listen-http"))
	viper.BindPFlag("primary_port", rootCmd.Flags().Lookup("primary-port"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
