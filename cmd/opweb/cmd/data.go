package cmd

import "github.com/spf13/cobra"

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Data file maintenance tools",
	Long:  `Commands for inspecting the forum's encrypted data store.`,
}

func init() {
	rootCmd.AddCommand(dataCmd)
}
