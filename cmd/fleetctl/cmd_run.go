package main

import "github.com/spf13/cobra"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Commands to inspect and manipulate test runs",
}

func init() {
	rootCmd.AddCommand(runCmd)
}
