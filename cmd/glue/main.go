package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	stateDir   string
)

var rootCmd = &cobra.Command{
	Use:   "glue",
	Short: "MetaMask Android glue for the wallet test framework",
	Long: `glue bridges a MetaMask Android instance, driven over a UiAutomator2
session, to remote test logic speaking JSON over WebSocket. It watches
the wallet for approval screens, raises each one as a correlated event,
and executes the resolving commands test clients send back.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to glue.yaml")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", defaultStateDir(), "directory for lock, socket, and log files")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.glue-metamask"
	}
	return ".glue-metamask"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
