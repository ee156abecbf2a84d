// Command sdbridged boots the SD-card bridge control plane: the
// access-mode arbiter, the USB Mass Storage block adapter, and the
// streaming HTTP upload pipeline, wired against either an in-memory or
// file-backed BlockDevice so the whole state machine is exercisable
// without real SD hardware or a real USB controller.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yarrco/sdbridge/internal/arbiter"
	"github.com/yarrco/sdbridge/internal/blockdev"
	"github.com/yarrco/sdbridge/internal/config"
	"github.com/yarrco/sdbridge/internal/httpapi"
	"github.com/yarrco/sdbridge/internal/interfaces"
	"github.com/yarrco/sdbridge/internal/logging"
	"github.com/yarrco/sdbridge/internal/pathguard"
	"github.com/yarrco/sdbridge/internal/scsi"
	"github.com/yarrco/sdbridge/internal/selftest"
	"github.com/yarrco/sdbridge/internal/upload"
	"github.com/yarrco/sdbridge/internal/usbstack"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sdbridged",
		Short: "SD-card bridge firmware control plane",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newSelftestCmd())
	return root
}

// deviceFlags are shared by serve and selftest: both need a BlockDevice
// and a mount directory to stand the filesystem overlay up over.
type deviceFlags struct {
	backend    string
	file       string
	size       string
	mount      string
	configPath string
	verbose    bool
}

func addDeviceFlags(cmd *cobra.Command, f *deviceFlags) {
	cmd.Flags().StringVar(&f.backend, "backend", "memory", "block device backend: memory|file")
	cmd.Flags().StringVar(&f.file, "file", "sdcard.img", "backing file path when --backend=file")
	cmd.Flags().StringVar(&f.size, "size", "64M", "device size (e.g. 64M, 1G) when --backend=memory or creating --file")
	cmd.Flags().StringVar(&f.mount, "mount", "./sdcard", "directory the filesystem overlay is rooted at")
	cmd.Flags().StringVar(&f.configPath, "config", "sdbridge.toml", "path to the persisted TOML config")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
}

func newServeCmd() *cobra.Command {
	f := &deviceFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP control plane and arbiter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}
	addDeviceFlags(cmd, f)
	return cmd
}

func newSelftestCmd() *cobra.Command {
	f := &deviceFlags{}
	var sizeBytes string
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run one self-test pass against the filesystem overlay and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseSize(sizeBytes)
			if err != nil {
				return fmt.Errorf("invalid --size-bytes %q: %w", sizeBytes, err)
			}
			return runSelftest(f, n)
		},
	}
	addDeviceFlags(cmd, f)
	cmd.Flags().StringVar(&sizeBytes, "size-bytes", "1M", "scratch file size for the self-test pass")
	return cmd
}

func buildLogger(verbose bool) *logging.Logger {
	logConfig := logging.DefaultConfig()
	if verbose {
		logConfig.Level = logging.LevelDebug
	}
	return logging.NewLogger(logConfig)
}

func openBlockDevice(f *deviceFlags) (interfaces.BlockDevice, error) {
	const sectorSize = 512
	sizeBytes, err := parseSize(f.size)
	if err != nil {
		return nil, fmt.Errorf("invalid --size %q: %w", f.size, err)
	}
	numSectors := uint32(sizeBytes / sectorSize)

	switch f.backend {
	case "memory":
		return blockdev.NewMemory(sectorSize, numSectors), nil
	case "file":
		return blockdev.OpenFile(f.file, sectorSize, numSectors)
	default:
		return nil, fmt.Errorf("unknown --backend %q (want memory|file)", f.backend)
	}
}

func runServe(f *deviceFlags) error {
	logger := buildLogger(f.verbose)

	if err := os.MkdirAll(f.mount, 0o755); err != nil {
		return fmt.Errorf("create mount dir %s: %w", f.mount, err)
	}

	cfgStore := config.NewTomlStore(f.configPath)
	cfg, err := cfgStore.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.WebPort == 0 {
		cfg.WebPort = 80
	}

	dev, err := openBlockDevice(f)
	if err != nil {
		return err
	}

	metrics := sdbridgeMetrics()
	observer := metrics.observer

	fsOverlay := newOSOverlay(f.mount)
	usb := usbstack.New()
	// Starts the arbiter in AppMounted so the boot transition into the
	// default UsbExposed mode below runs through TryRequest like any other
	// transition, actually invoking usb.Start and the adapter's Attach hook
	// instead of just labeling Mode UsbExposed with the media never armed.
	a := arbiter.New(usb, fsOverlay, f.mount, arbiter.ModeAppMounted, logger.WithComponent("arbiter"), observer)

	scsiLogger := logger.WithComponent("scsi")
	adapter := scsi.New(dev, 8, observer)
	a.SetUsbCallbacks(usbstack.Callbacks{
		OnAttach: adapter.Attach,
		OnDetach: func() {
			if err := adapter.Detach(); err != nil {
				scsiLogger.Errorf("detach: flush failed: %v", err)
			}
		},
	})

	if err := a.TryRequest(arbiter.ModeUsbExposed); err != nil {
		return fmt.Errorf("boot transition to UsbExposed: %w", err)
	}

	guard := pathguard.New(f.mount)
	pipeline := upload.New(observer)
	runner := selftest.New(fsOverlay)

	attachUSB := func() error { return a.TryRequest(arbiter.ModeUsbExposed) }
	detachUSB := func() error { return a.TryRequest(arbiter.ModeAppMounted) }

	srv := httpapi.New(a, guard, fsOverlay, pipeline, runner, logger.WithComponent("httpapi"), observer, attachUSB, detachUSB)

	addr := ":" + strconv.Itoa(cfg.WebPort)
	logger.Infof("listening on %s (mode=%s, mount=%s, backend=%s)", addr, a.CurrentMode(), f.mount, f.backend)

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  0, // uploads stream for an unbounded duration
		WriteTimeout: 0,
	}
	return httpSrv.ListenAndServe()
}

func runSelftest(f *deviceFlags, sizeBytes int64) error {
	logger := buildLogger(f.verbose)
	if err := os.MkdirAll(f.mount, 0o755); err != nil {
		return fmt.Errorf("create mount dir %s: %w", f.mount, err)
	}

	fsOverlay := newOSOverlay(f.mount)
	if err := fsOverlay.Mount(f.mount); err != nil {
		return fmt.Errorf("mount overlay: %w", err)
	}

	runner := selftest.New(fsOverlay)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := runner.Run(ctx, sizeBytes)
	if err != nil {
		logger.Errorf("selftest failed: %v", err)
		return err
	}
	if report.Corrupted {
		logger.Errorf("selftest verification mismatch (wrote %d, read %d)", report.BytesWritten, report.BytesRead)
		return fmt.Errorf("selftest: verification mismatch")
	}
	logger.Infof("selftest ok: wrote %d bytes at %.0f B/s, read %d bytes at %.0f B/s",
		report.BytesWritten, report.WriteBytesPerSec, report.BytesRead, report.ReadBytesPerSec)
	return nil
}

// parseSize parses a size string like "64M", "1G", "512K", adapted from
// the teacher's cmd/ublk-mem size parser.
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
