package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/srand/fleet/pkg/log"
)

var rootCmd = &cobra.Command{
	Use:   "fleetctl",
	Short: "Fleet scheduler control command",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		viper.SetConfigName("fleetctl.yaml")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/fleet/")
		viper.AddConfigPath("$HOME/.config/fleet")
		viper.AddConfigPath(".")
		viper.ReadInConfig()

		viper.SetEnvPrefix("fleet")
		viper.AutomaticEnv()

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

		config, err := ParseConfig()
		if err != nil {
			log.Fatal(err)
		}
		configData = *config
	},
}

var configData = ControlConfig{}

func main() {
	rootCmd.PersistentFlags().StringP("scheduler-uri", "s", "tcp://localhost:9090", "Scheduler service URI")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Verbosity (repeatable)")
	viper.BindPFlag("scheduler_uri", rootCmd.PersistentFlags().Lookup("scheduler-uri"))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
