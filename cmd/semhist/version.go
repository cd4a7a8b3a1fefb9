package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"semhist/internal/lang"
	"semhist/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
		fmt.Printf("Languages: %v\n", lang.BuiltinTags())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
