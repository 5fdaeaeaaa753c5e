package main

import "github.com/spf13/cobra"

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Simulate fleet clients against the scheduler service",
}

func init() {
	rootCmd.AddCommand(mockCmd)
}
