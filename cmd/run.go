package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ManouchehrRasoulli/fseventmon/pkg"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/logger"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/metrics"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/resume"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/server"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/user"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/watcher"
)

const maxStartRetries = 5

var (
	quiet bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the monitors of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if quiet {
				out = io.Discard
			}
			return run(cmd.Context(), configFile, out)
		},
	}
)

func init() {
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print delivered records.")
	rootCmd.AddCommand(runCmd)
}

type daemon struct {
	// mu guards cfg, which reload replaces.
	mu       sync.Mutex
	cfg      *pkg.Config
	lg       *log.Logger
	clg      *logger.ColorLogger
	out      io.Writer
	svc      watcher.Service
	metrics  *metrics.Metrics
	store    *resume.Store
	srv      *server.Server
	monitors map[string]*watcher.Monitor
}

func run(ctx context.Context, file string, out io.Writer) error {
	lg, clg := newLogger("fseventmon")
	clg.Printcf(logger.ColorGreen, "start fseventmon : with config file %v", file)

	cfg, err := pkg.ReadConfig(file)
	if err != nil {
		return fmt.Errorf("reading configuration file %s: %w", file, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	d := &daemon{
		cfg:      cfg,
		lg:       lg,
		clg:      clg,
		out:      out,
		svc:      watcher.NewSystemService(),
		metrics:  metrics.New(reg),
		monitors: make(map[string]*watcher.Monitor),
	}
	defer d.close()

	if cfg.Metrics.Address != "" {
		stopMetrics := serveMetrics(cfg.Metrics.Address, reg, clg)
		defer stopMetrics()
	}

	if err := d.openStore(); err != nil {
		return err
	}
	if err := d.startServer(); err != nil {
		return err
	}
	for _, mc := range cfg.Monitors {
		if err := d.startMonitor(ctx, mc); err != nil {
			return err
		}
	}

	reloader, err := pkg.NewConfigWatcher(file,
		pkg.WithReloadLogger(lg),
		pkg.WithReloadFunction(d.reload))
	if err != nil {
		clg.Errorf("config error : hot reload disabled, %v", err)
	} else {
		defer reloader.Close()
	}

	<-ctx.Done()
	clg.Printcf(logger.ColorYellow, "fseventmon : shutting down")
	return nil
}

func serveMetrics(address string, reg *prometheus.Registry, clg *logger.ColorLogger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			clg.Errorf("metrics error : %v", err)
		}
	}()
	clg.Infof("metrics : serving on %s/metrics", address)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func (d *daemon) openStore() error {
	if d.cfg.State == "" {
		return nil
	}

	store, err := resume.Open(d.cfg.State)
	if err != nil {
		return err
	}
	d.store = store

	if t, ok, err := store.LoadInvalidation(); err != nil {
		d.clg.Errorf("state error : %v", err)
	} else if ok {
		watcher.ProcessInvalidation().Observe(t)
	}

	d.pruneStore()
	return nil
}

// pruneStore drops the resume points of monitors that left the config.
func (d *daemon) pruneStore() {
	names, err := d.store.Names()
	if err != nil {
		d.clg.Errorf("state error : %v", err)
		return
	}

	cfg := d.config()
	for _, name := range names {
		if _, ok := cfg.Monitor(name); ok {
			continue
		}
		if err := d.store.Delete(name); err != nil {
			d.clg.Errorf("state error : monitor %s, %v", name, err)
			continue
		}
		d.clg.Infof("state : dropped resume point of removed monitor %s", name)
	}
}

func (d *daemon) config() *pkg.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// resumes reports whether the current config keeps a resume point for name.
func (d *daemon) resumes(name string) bool {
	mc, ok := d.config().Monitor(name)
	return ok && mc.Resume && d.store != nil
}

func (d *daemon) startServer() error {
	sc := d.cfg.Server
	if sc.Address == "" {
		return nil
	}

	var um *user.Manager
	if sc.PwFile != "" {
		var err error
		if um, err = user.NewManager(sc.PwFile); err != nil {
			return fmt.Errorf("server error : failed user manager initialization. %w", err)
		}
	}

	var tls *server.ServerTLS
	if sc.TLS.Cert != "" || sc.TLS.Key != "" {
		tls = &server.ServerTLS{Cert: sc.TLS.Cert, Key: sc.TLS.Key}
	}

	d.srv = server.NewServer(sc.Address, tls, um, d.lg)
	if err := d.srv.Listen(); err != nil {
		return err
	}
	go func() {
		if err := d.srv.Run(); err != nil {
			d.clg.Errorf("server error : got error %v running server !!", err)
		}
	}()
	return nil
}

func (d *daemon) startMonitor(ctx context.Context, mc pkg.MonitorConfig) error {
	wc, err := mc.WatcherConfig()
	if err != nil {
		return fmt.Errorf("monitor %s: %w", mc.Name, err)
	}

	options := []watcher.Option{
		watcher.WithLogger(d.lg),
		watcher.WithMetrics(d.metrics.For(mc.Name)),
		watcher.WithCallbackFunction(printRecords(d.out, mc.Name)),
	}
	if d.srv != nil {
		options = append(options, watcher.WithCallbackFunction(d.srv.EventHook(mc.Name)))
	}
	if d.store != nil {
		options = append(options, watcher.WithCallbackFunction(d.saveHook(mc.Name)))
	}

	m := watcher.NewMonitor(d.svc, wc.Paths, options...)
	m.Configure(wc)
	d.monitors[mc.Name] = m

	var saved *model.EventRecord
	if mc.Resume && d.store != nil {
		e, ok, err := d.store.Load(mc.Name)
		if err != nil {
			d.clg.Errorf("state error : monitor %s, %v", mc.Name, err)
		} else if ok {
			saved = &e
		}
	}

	start := func() error {
		if saved != nil {
			m.StartFrom(*saved)
		} else {
			m.Start()
		}
		if m.IsActive() {
			return nil
		}

		err := m.LastError()
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		d.clg.Printcf(logger.ColorYellow, "monitor %s : start failed, retry in %v. %v", mc.Name, wait, err)
	}

	if err := backoff.RetryNotify(start, startPolicy(ctx), notify); err != nil {
		return fmt.Errorf("monitor %s: %w", mc.Name, err)
	}

	d.clg.Infof("config monitor %s : paths: %v, actions: %v, latency: %vs", mc.Name, wc.Paths, wc.Actions, wc.Latency)
	return nil
}

func startPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff(backoff.WithInitialInterval(500 * time.Millisecond))
	return backoff.WithContext(backoff.WithMaxRetries(b, maxStartRetries), ctx)
}

// isPermanent reports failures that no amount of retrying fixes.
func isPermanent(err error) bool {
	return errors.Is(err, watcher.ErrNoPaths) ||
		errors.Is(err, watcher.ErrNoTarget) ||
		errors.Is(err, watcher.ErrNoActions) ||
		errors.Is(err, watcher.ErrUnsupported)
}

func (d *daemon) saveHook(name string) func([]model.EventRecord) {
	return func(records []model.EventRecord) {
		if !d.resumes(name) {
			return
		}
		if err := d.store.Save(name, records[len(records)-1]); err != nil {
			d.lg.Printf("state error :: monitor %s, %v\n", name, err)
		}
	}
}

// reload applies a changed config to monitors that already run. Adding or
// removing monitors, or changing the server, needs a restart.
func (d *daemon) reload(cfg *pkg.Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()

	for _, mc := range cfg.Monitors {
		m, ok := d.monitors[mc.Name]
		if !ok {
			d.clg.Printcf(logger.ColorYellow, "config : new monitor %s is started on the next restart", mc.Name)
			continue
		}

		wc, err := mc.WatcherConfig()
		if err != nil {
			d.clg.Errorf("config error : monitor %s, %v", mc.Name, err)
			continue
		}
		m.Configure(wc, watcher.KeepPosition())
		d.clg.Printcf(logger.ColorYellow, "config : monitor %s reconfigured, active: %v", mc.Name, m.IsActive())
	}

	for name := range d.monitors {
		if _, ok := cfg.Monitor(name); !ok {
			d.clg.Printcf(logger.ColorYellow, "config : monitor %s is removed on the next restart", name)
		}
	}
}

func (d *daemon) close() {
	for name, m := range d.monitors {
		pos, ok := m.Position()
		_ = m.Close()

		if ok && d.resumes(name) {
			if err := d.store.Save(name, pos); err != nil {
				d.clg.Errorf("state error : monitor %s, %v", name, err)
			}
		}
	}

	if d.srv != nil {
		_ = d.srv.Exit()
	}

	if d.store != nil {
		if t, ok := watcher.ProcessInvalidation().Last(); ok {
			if err := d.store.SaveInvalidation(t); err != nil {
				d.clg.Errorf("state error : %v", err)
			}
		}
		_ = d.store.Close()
	}
}

func printRecords(out io.Writer, monitor string) func([]model.EventRecord) {
	return func(records []model.EventRecord) {
		for _, e := range records {
			fmt.Fprintf(out, "%s\t%d\t%s\t%s\t%s\n", monitor, e.ID, e.Path, e.Actions, e.ItemType)
		}
	}
}
