package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/srand/fleet/pkg/protocol"
)

var workerListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List workers",
	Run: func(cmd *cobra.Command, args []string) {
		var response struct {
			Workers []protocol.WorkerStatus `json:"workers"`
		}
		adminCall(protocol.MethodListWorker, struct{}{}, &response)

		sort.Slice(response.Workers, func(i, j int) bool {
			return response.Workers[i].WorkerId < response.Workers[j].WorkerId
		})

		workerCount := len(response.Workers)
		workerPad := fmt.Sprint(len(fmt.Sprint(workerCount)))

		for index, worker := range response.Workers {
			fmt.Printf("%"+workerPad+"d: %s, %d cores, last beat %s\n",
				index+1,
				worker.WorkerId,
				worker.Concurrency,
				worker.LastBeat.Local().Format("2006-01-02T15:04:05"),
			)

			if worker.RunId != "" {
				fmt.Printf("  Task %s/%d\n", worker.RunId, worker.TaskIndex)
			}
		}
	},
}

func init() {
	workerCmd.AddCommand(workerListCmd)
}
