package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/stats"
)

var runCreateCmd = &cobra.Command{
	Use:   "create [new] [base]",
	Short: "Create a test run of a new engine against a base engine",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runArgs, err := runArgsFromFlags(cmd, args[0], args[1])
		if err != nil {
			log.Fatal(err)
		}

		r := &run.Run{}
		adminCall(protocol.MethodCreateRun, runArgs, r)
		fmt.Println(r.Id)
	},
}

func runArgsFromFlags(cmd *cobra.Command, newTag, baseTag string) (*run.Args, error) {
	flags := cmd.Flags()

	args := &run.Args{NewTag: newTag, BaseTag: baseTag}
	args.Book, _ = flags.GetString("book")
	args.TC, _ = flags.GetString("tc")
	args.Threads, _ = flags.GetInt("threads")
	args.NumGames, _ = flags.GetInt("games")
	args.Throughput, _ = flags.GetInt("throughput")
	args.Priority, _ = flags.GetInt("priority")

	if flags.Changed("sprt") {
		bounds, _ := flags.GetFloat64Slice("sprt")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("--sprt takes two bounds, elo0,elo1")
		}

		sprt := &run.SprtState{Elo0: bounds[0], Elo1: bounds[1]}
		sprt.Alpha, _ = flags.GetFloat64("alpha")
		sprt.Beta, _ = flags.GetFloat64("beta")
		sprt.BatchSize, _ = flags.GetInt("batch-size")

		model, _ := flags.GetString("elo-model")
		sprt.EloModel = stats.EloModel(model)

		sprt.Kind = stats.KindPentanomial
		if sprt.BatchSize <= 1 {
			sprt.Kind = stats.KindTrinomial
		}
		args.Sprt = sprt
	}

	if path, _ := flags.GetString("spsa"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		spsa := &stats.Spsa{}
		if err := json.Unmarshal(data, spsa); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		args.Spsa = spsa
	}

	return args, nil
}

func init() {
	flags := runCreateCmd.Flags()
	flags.StringP("book", "b", "", "Opening book")
	flags.StringP("tc", "t", "10+0.1", "Time control, [moves/]base[+increment] in seconds")
	flags.Int("threads", 1, "Engine threads per game")
	flags.IntP("games", "n", 40000, "Game budget")
	flags.Int("throughput", 100, "Share of the fleet in percent")
	flags.IntP("priority", "p", 0, "Runs with higher priority are served first")
	flags.Float64Slice("sprt", nil, "Run a sequential test with the Elo bounds elo0,elo1")
	flags.Float64("alpha", 0.05, "Sequential test type I error")
	flags.Float64("beta", 0.05, "Sequential test type II error")
	flags.String("elo-model", string(stats.EloModelNormalized), "Elo model of the test bounds, logistic or normalized")
	flags.Int("batch-size", 2, "Game pairs per sequential test batch, 1 for trinomial results")
	flags.String("spsa", "", "JSON file with an SPSA tuning session")
	runCmd.AddCommand(runCreateCmd)
}
