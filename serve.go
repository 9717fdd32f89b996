package main

import (
	"github.com/spf13/cobra"

	"github.com/go-i2p/logger"

	"github.com/conngate/conngate/lib/config"
	"github.com/conngate/conngate/lib/daemon"
	"github.com/conngate/conngate/lib/util/signals"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admission gateway daemon",
		Long: `serve assembles the admission engine over the configured topology and
keeps it running behind the control API until interrupted. SIGHUP
reloads the topology file; SIGINT and SIGTERM drain live sessions and
shut down.`,
		RunE: runServe,
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.CurrentConfig()
	if err := config.Validate(cfg); err != nil {
		return err
	}

	go signals.Handle()

	d, err := daemon.CreateDaemon(cfg)
	if err != nil {
		return err
	}

	signals.RegisterReloadHandler(d.ReloadTopology)
	signals.RegisterDrainHandler(func() {
		drained := d.DrainSessions()
		log.WithFields(logger.Fields{
			"at":      "runServe",
			"drained": drained,
		}).Info("live sessions drained for shutdown")
	})
	signals.RegisterInterruptHandler(d.Stop)

	d.Start()
	d.Wait()
	return d.Close()
}
