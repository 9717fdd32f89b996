package daemon

import (
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/conngate/conngate/lib/admission"
	"github.com/conngate/conngate/lib/config"
	"github.com/conngate/conngate/lib/control"
	"github.com/conngate/conngate/lib/directory"
	"github.com/conngate/conngate/lib/dispatch"
	"github.com/conngate/conngate/lib/gateway"
	"github.com/conngate/conngate/lib/group"
	"github.com/conngate/conngate/lib/metrics"
	"github.com/conngate/conngate/lib/registry"
	"github.com/conngate/conngate/lib/tunnel"
	"github.com/conngate/conngate/lib/util"
)

var log = logger.GetGoI2PLogger()

// statsEvery is how many mainloop ticks pass between engine stat lines.
const statsEvery = 60

// Daemon assembles the admission engine, the control server, and the
// topology directory from one configuration and runs them as a unit.
type Daemon struct {
	cfg config.Config

	directory *directory.Memory
	registry  *registry.Registry
	gateway   *gateway.Gateway
	control   *control.Server

	defaults admission.Defaults
	prom     *prometheus.Registry

	// close channel
	closeChnl chan bool
	// running flag and mutex for thread-safe access
	running bool
	runMux  sync.RWMutex
}

// CreateDaemon builds a daemon from the given configuration. The topology
// is loaded (or the demo topology substituted), the engine wired, and the
// control server constructed but not yet listening. Start brings it up.
func CreateDaemon(cfg config.Config) (*Daemon, error) {
	log.Debug("creating daemon from configuration")

	d := &Daemon{cfg: cfg, closeChnl: make(chan bool, 1)}

	if err := d.initializeDirectory(); err != nil {
		return nil, err
	}
	d.initializeEngine()
	if err := d.initializeControl(); err != nil {
		return nil, err
	}

	util.RegisterCloser(d.gateway)
	if d.control != nil {
		util.RegisterCloser(d.control)
	}

	log.Debug("daemon created successfully from configuration")
	return d, nil
}

// initializeDirectory loads the YAML topology, falling back to the
// built-in demo topology when the file is absent so a fresh install
// starts without setup.
func (d *Daemon) initializeDirectory() error {
	path := d.cfg.TopologyPath
	if !util.CheckFileExists(path) {
		log.WithFields(logger.Fields{
			"at":   "(Daemon) initializeDirectory",
			"path": path,
		}).Warn("topology file not found, starting with the demo topology")
		d.directory = demoTopology()
		return nil
	}

	dir, err := directory.Load(path)
	if err != nil {
		return err
	}
	d.directory = dir
	return nil
}

// initializeEngine wires the registry, admission controller, dispatcher,
// throttle, and gateway over the loaded directory.
func (d *Daemon) initializeEngine() {
	d.registry = registry.New()
	d.defaults = admission.Defaults{
		GroupMaxSessions:             d.cfg.Admission.MaxGroupSessions,
		GroupMaxSessionsPerUser:      d.cfg.Admission.MaxGroupSessionsPerUser,
		ConnectionMaxSessions:        d.cfg.Admission.MaxConnectionSessions,
		ConnectionMaxSessionsPerUser: d.cfg.Admission.MaxConnectionSessionsPerUser,
	}
	controller := admission.NewController(admission.NewResolver(d.defaults), d.registry)

	// Metrics stay nil without the control server since nothing would
	// scrape them.
	var collector *metrics.Collector
	if d.cfg.Control.Enabled {
		d.prom = prometheus.NewRegistry()
		collector = metrics.NewCollector(d.prom)
	}

	dispatcher := dispatch.NewDispatcher(d.directory, controller, d.registry, tunnel.NewLoopback(), collector)

	var throttle *gateway.Throttle
	if d.cfg.Throttle.Enabled {
		throttle = gateway.NewThrottle(
			d.cfg.Throttle.AttemptsPerMinute,
			d.cfg.Throttle.Burst,
			d.cfg.Throttle.IdleEviction,
		)
		log.WithFields(logger.Fields{
			"at":                  "(Daemon) initializeEngine",
			"attempts_per_minute": d.cfg.Throttle.AttemptsPerMinute,
			"burst":               d.cfg.Throttle.Burst,
		}).Info("per-user connect throttle enabled")
	}

	d.gateway = gateway.New(d.directory, dispatcher, d.registry, collector, throttle)
}

// initializeControl constructs the control server when it is enabled.
func (d *Daemon) initializeControl() error {
	if !d.cfg.Control.Enabled {
		return nil
	}

	server, err := control.NewServer(control.Options{
		Address:         d.cfg.Control.Address,
		AuthToken:       d.cfg.Control.AuthToken,
		ShutdownTimeout: d.cfg.Control.ShutdownTimeout,
		Defaults:        d.defaults,
		Metrics:         d.prom,
	}, d.directory, d.gateway)
	if err != nil {
		return err
	}
	d.control = server
	return nil
}

// Start marks the daemon running, brings up the control listener, and
// launches the housekeeping loop.
func (d *Daemon) Start() {
	d.runMux.Lock()
	defer d.runMux.Unlock()

	if d.running {
		log.WithFields(logger.Fields{
			"at":     "(Daemon) Start",
			"reason": "daemon is already running",
		}).Error("Error starting daemon")
		return
	}
	d.running = true

	if d.control != nil {
		d.control.Start()
	}

	log.WithFields(logger.Fields{
		"at":          "(Daemon) Start",
		"groups":      len(d.directory.GroupIdentifiers()),
		"connections": len(d.directory.ConnectionIdentifiers()),
		"control":     d.control != nil,
	}).Info("conngate is running")

	go d.mainloop()
}

// mainloop checks the running flag once a second and emits an engine stat
// line once a minute. It exits when Stop flips the flag.
func (d *Daemon) mainloop() {
	ticks := 0
	for {
		d.runMux.RLock()
		shouldRun := d.running
		d.runMux.RUnlock()

		if !shouldRun {
			log.Debug("daemon mainloop exiting")
			return
		}

		time.Sleep(time.Second)
		ticks++
		if ticks%statsEvery == 0 {
			stats := d.gateway.Stats()
			log.WithFields(logger.Fields{
				"at":       "(Daemon) mainloop",
				"live":     stats.LiveSessions,
				"acquired": stats.TotalAcquired,
				"rejected": stats.TotalRejected,
			}).Debug("engine stats")
		}
	}
}

// Wait blocks until the daemon is stopped.
func (d *Daemon) Wait() {
	log.Debug("waiting for daemon to stop")
	<-d.closeChnl
	log.Debug("daemon has stopped")
}

// Stop flips the running flag and signals Wait. Safe to call from a
// signal handler; repeated calls are no-ops.
func (d *Daemon) Stop() {
	log.Debug("stopping daemon")
	d.runMux.Lock()
	defer d.runMux.Unlock()

	if !d.running {
		log.Debug("daemon already stopped")
		return
	}
	d.running = false

	// Send close signal without blocking - use select with default case
	select {
	case d.closeChnl <- true:
		log.Debug("daemon stop signal sent")
	default:
		log.Debug("daemon stop signal already sent")
	}
}

// Close tears down the gateway and control server. Call after Wait
// returns; sessions still live are killed on the way down.
func (d *Daemon) Close() error {
	util.CloseAll()
	log.Info("daemon closed")
	return nil
}

// DrainSessions closes every live session and reports how many were
// drained. Wired to the shutdown drain hook.
func (d *Daemon) DrainSessions() int {
	return d.gateway.DrainSessions()
}

// ReloadTopology re-reads the topology file and swaps it in. Failures
// keep the current topology untouched. Wired to SIGHUP.
func (d *Daemon) ReloadTopology() {
	path := d.cfg.TopologyPath
	if !util.CheckFileExists(path) {
		log.WithFields(logger.Fields{
			"at":   "(Daemon) ReloadTopology",
			"path": path,
		}).Warn("topology file not found, keeping the current topology")
		return
	}

	fresh, err := directory.Load(path)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"at":   "(Daemon) ReloadTopology",
			"path": path,
		}).Error("topology reload failed, keeping the current topology")
		return
	}

	d.directory.ReplaceWith(fresh)
	log.WithFields(logger.Fields{
		"at":          "(Daemon) ReloadTopology",
		"groups":      len(d.directory.GroupIdentifiers()),
		"connections": len(d.directory.ConnectionIdentifiers()),
	}).Info("topology reloaded")
}

// Gateway exposes the session gateway for callers embedding the daemon.
func (d *Daemon) Gateway() *gateway.Gateway {
	return d.gateway
}

// Directory exposes the live topology directory.
func (d *Daemon) Directory() *directory.Memory {
	return d.directory
}

// demoTopology is a self-contained loopback setup: a balancing pool over
// two echo endpoints plus one standalone endpoint.
func demoTopology() *directory.Memory {
	dir := directory.NewMemory()

	for _, id := range []string{"echo-a", "echo-b"} {
		dir.PutConnection(group.NewConnection(id, id))
	}

	slow := group.NewConnection("echo-slow", "echo-slow")
	slow.SetParameter(tunnel.DelayParameter, "50ms")
	dir.PutConnection(slow)

	pool := group.New("demo", "Demo Pool", group.Balancing)
	pool.SetConcurrencyLimits(group.Limits{MaxSessions: group.Bounded(64)})
	pool.AddChildConnection("echo-a")
	pool.AddChildConnection("echo-b")
	dir.PutGroup(pool)

	return dir
}
