package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
)

var runListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List runs",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")

		var response struct {
			Runs []*run.Run `json:"runs"`
		}
		adminCall(protocol.MethodListRuns, &protocol.ListRunsRequest{Status: protocol.RunStatus(status)}, &response)

		runCount := len(response.Runs)
		runPad := fmt.Sprint(len(fmt.Sprint(runCount)))

		for index, r := range response.Runs {
			fmt.Printf("%"+runPad+"d: %s %-10s %s %s vs %s, %d/%d games, %d cores\n",
				index+1,
				r.Id,
				r.Status,
				r.CreatedAt.Format("2006-01-02T15:04:05"),
				r.Args.NewTag,
				r.Args.BaseTag,
				r.Results.Games(),
				r.Args.NumGames,
				r.Cores(),
			)

			if !cmd.Flags().Changed("tasks") {
				continue
			}

			for _, t := range r.Tasks {
				state := "done"
				if t.Active {
					state = "active"
				}
				fmt.Printf("    %d: %-6s %s %d/%d games\n", t.Index, state, t.WorkerId, t.Stats.Games(), t.NumGames)
			}
			fmt.Println()
		}
	},
}

func init() {
	runListCmd.Flags().StringP("status", "S", "", "Only list runs with this status")
	runListCmd.Flags().BoolP("tasks", "t", false, "List tasks")
	runCmd.AddCommand(runListCmd)
}
