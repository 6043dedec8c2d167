package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set via -ldflags at build time.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the glue version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("glue-metamask-android %s\n", Version)
	},
}
