package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
)

var runShowCmd = &cobra.Command{
	Use:   "show [run]",
	Short: "Print the document of a run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := &run.Run{}
		adminCall(protocol.MethodGetRun, &protocol.RunRequest{RunId: args[0]}, r)

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(r); err != nil {
			log.Fatal(err)
		}
	},
}

var runEloCmd = &cobra.Command{
	Use:   "elo [run]",
	Short: "Print the Elo estimate of a run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		elo := &protocol.EloResponse{}
		adminCall(protocol.MethodGetElo, &protocol.RunRequest{RunId: args[0]}, elo)

		fmt.Printf("Elo: %.2f [%.2f, %.2f], LOS: %.1f%%, games: %d\n",
			elo.Elo.Elo, elo.Lower, elo.Upper, elo.LOS*100, elo.Games)

		if elo.Sprt != nil {
			fmt.Printf("LLR: %.2f [%.2f, %.2f], %s\n",
				elo.Sprt.LLR, elo.Sprt.LowerBound, elo.Sprt.UpperBound, elo.Sprt.Verdict)
		}
	},
}

func init() {
	runCmd.AddCommand(runShowCmd)
	runCmd.AddCommand(runEloCmd)
}
