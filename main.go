package main

import (
	"os"

	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"

	"github.com/conngate/conngate/lib/config"
)

var log = logger.GetGoI2PLogger()

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "conngate",
		Short:         "Admission control and dispatch gateway for remote-session endpoints",
		Long: `conngate manages hierarchical groups of remote-session endpoints and
decides, for each incoming connection request, whether it may proceed
and which concrete endpoint should service it.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "",
		"config file (default is $HOME/.conngate/config.yaml)")

	rootCmd.AddCommand(
		newServeCmd(),
		newTopCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func main() {
	cobra.OnInitialize(config.InitConfig)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
