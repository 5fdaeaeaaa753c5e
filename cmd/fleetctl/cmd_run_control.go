package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srand/fleet/pkg/protocol"
)

var runPauseCmd = &cobra.Command{
	Use:   "pause [run...]",
	Short: "Stop assigning tasks from runs",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		for _, id := range args {
			adminCall(protocol.MethodPauseRun, &protocol.RunRequest{RunId: id}, nil)
			fmt.Println("Paused", id)
		}
	},
}

var runResumeCmd = &cobra.Command{
	Use:   "resume [run...]",
	Short: "Resume assigning tasks from paused runs",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		for _, id := range args {
			adminCall(protocol.MethodResumeRun, &protocol.RunRequest{RunId: id}, nil)
			fmt.Println("Resumed", id)
		}
	},
}

var runStopCmd = &cobra.Command{
	Use:   "stop [run...]",
	Short: "Finish runs",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")

		for _, id := range args {
			adminCall(protocol.MethodFinishRun, &protocol.RunRequest{RunId: id, Reason: reason}, nil)
			fmt.Println("Finished", id)
		}
	},
}

func init() {
	runStopCmd.Flags().StringP("reason", "r", "finished by operator", "Reason recorded in the run")
	runCmd.AddCommand(runPauseCmd)
	runCmd.AddCommand(runResumeCmd)
	runCmd.AddCommand(runStopCmd)
}
