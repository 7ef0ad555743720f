// Command agentrt-demo is the runtime's demo entrypoint: a cobra command
// tree exposing `serve` (run the HTTP ingress) and `run` (drive one request
// from the terminal, printing the event stream) (spec.md §4.13). Grounded
// on the vanducng-goclaw pack repo's cmd/root.go layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agentrt-demo",
	Short: "agentrt-demo — agent orchestration runtime demo",
	Long:  "agentrt-demo drives the Controller's phase graph over an HTTP ingress or a one-shot terminal run.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (not read: configuration always comes from ./config.yaml or ./config/config.yaml plus AGENTRT_ env vars)")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("agentrt-demo dev")
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
