package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "unigate",
		Short: "QUIC packet ingress",
		Long: fmt.Sprintf(`unigate (%s)

Accepts QUIC connections and hands every unidirectional stream, read as one
packet of at most 1024 bytes, to a packet dispatcher.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of unigate",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("unigate %s\n", Version)
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
