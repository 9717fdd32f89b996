package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conngate/conngate/lib/config"
	"github.com/conngate/conngate/lib/console"
)

func newTopCmd() *cobra.Command {
	var (
		address  string
		token    string
		interval time.Duration
	)

	topCmd := &cobra.Command{
		Use:   "top",
		Short: "Live dashboard over a running daemon's control API",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := config.CurrentConfig()
			if address == "" {
				address = cfg.Control.Address
			}
			if token == "" {
				token = cfg.Control.AuthToken
			}
			return console.Run(baseURL(address), token, interval)
		},
	}

	topCmd.Flags().StringVar(&address, "address", "", "control API address (default from config)")
	topCmd.Flags().StringVar(&token, "token", "", "control API bearer token (default from config)")
	topCmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")

	return topCmd
}

func baseURL(address string) string {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return address
	}
	return "http://" + address
}
