// Command rascsi-go serves a YAML-described set of SCSI targets over the
// Pi's GPIO bus, per spec.md §8's deployment shape: parse manifest, attach
// every LUN, then poll the bus until a termination signal arrives.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/PiSCSI/piscsi-sub003/bus"
	"github.com/PiSCSI/piscsi-sub003/bus/gpio"
	"github.com/PiSCSI/piscsi-sub003/config"
	"github.com/PiSCSI/piscsi-sub003/internal/rlog"
	"github.com/PiSCSI/piscsi-sub003/target"
)

var (
	manifestPath string
	logLevel     string
	metricsAddr  string
	gpioDevice   string
	dryRun       bool
)

func main() {
	root := &cobra.Command{
		Use:   "rascsi-go",
		Short: "Emulate SCSI targets on a Raspberry Pi's GPIO header",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Attach the configured targets and serve them until terminated",
		RunE:  runServe,
	}
	runCmd.Flags().StringVar(&manifestPath, "manifest", "", "path to the YAML device manifest (required)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9303", "address to serve Prometheus metrics on, empty to disable")
	runCmd.Flags().StringVar(&gpioDevice, "gpio-device", "/dev/gpiomem", "GPIO chardev to mmap; ignored with --dry-run")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "use an in-memory bus instead of real GPIO hardware")
	_ = runCmd.MarkFlagRequired("manifest")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := rlog.SetLevel(logLevel); err != nil {
		return fmt.Errorf("rascsi-go: %w", err)
	}

	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("rascsi-go: reading manifest: %w", err)
	}
	manifest, err := config.ParseManifest(raw)
	if err != nil {
		return fmt.Errorf("rascsi-go: %w", err)
	}

	b, cleanup, err := openBus()
	if err != nil {
		return fmt.Errorf("rascsi-go: %w", err)
	}
	defer cleanup()
	if err := b.Init(0); err != nil {
		return fmt.Errorf("rascsi-go: bus init: %w", err)
	}

	mgr := target.NewManager(b)
	if err := attachManifest(mgr, manifest); err != nil {
		return fmt.Errorf("rascsi-go: %w", err)
	}
	rlog.Infof("session %s: %d target(s) attached", mgr.SessionID, len(mgr.TargetIDs()))

	if metricsAddr != "" {
		serveMetrics(metricsAddr)
	}

	return servePollLoop(mgr)
}

func openBus() (bus.Bus, func(), error) {
	if dryRun {
		f := bus.NewFake()
		return f, func() {}, nil
	}
	chip, err := gpio.Open(gpioDevice)
	if err != nil {
		return nil, nil, err
	}
	return chip, chip.Cleanup, nil
}

func attachManifest(mgr *target.Manager, manifest *config.Manifest) error {
	for _, t := range manifest.Targets {
		for _, l := range t.Luns {
			opts, err := config.Validate(l.Kind, l.Options)
			if err != nil {
				return err
			}
			if err := mgr.Attach(t.ID, l.Lun, target.DeviceType(l.Kind), opts); err != nil {
				return err
			}
		}
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			rlog.Errorf("metrics server: %s", err)
		}
	}()
	rlog.Infof("metrics listening on %s", addr)
}

// servePollLoop drives mgr.Process in a tight loop until SIGINT/SIGTERM,
// then resets and tears down every target before returning, grounded on
// the teacher's signal-channel main-loop shape.
func servePollLoop(mgr *target.Manager) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				mgr.Process()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	<-sigCh
	close(done)
	rlog.Infof("shutting down session %s", mgr.SessionID)
	mgr.ResetAll()
	mgr.DeleteAll()
	return nil
}
