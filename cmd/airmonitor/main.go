// Command airmonitor runs one SPS30 measurement cycle: it starts the
// sensor, waits out the fan warm-up, reads and averages a handful of
// samples, writes them to a sink, and stops the sensor again. It is
// intended to be invoked periodically by an external scheduler (cron,
// systemd timer, ...); process scheduling is not this binary's job.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nasa-jpl/sps30agent/agentlog"
	"github.com/nasa-jpl/sps30agent/config"
	"github.com/nasa-jpl/sps30agent/diag"
	"github.com/nasa-jpl/sps30agent/shdlc"
	"github.com/nasa-jpl/sps30agent/sink"
	"github.com/nasa-jpl/sps30agent/sps30"
	"github.com/nasa-jpl/sps30agent/util"
)

// cliArgs holds the parsed command line, mirroring spec.md section 6's CLI
// contract (-c/--config PATH, default airmonitor_config.yml) plus a
// handful of one-shot diagnostic switches recovered from
// original_source/pmmonitor.py's interactive bring-up probes.
type cliArgs struct {
	configPath string
	listen     string
	fanClean   bool
	reset      bool
	info       bool
}

func parseArgs(argv []string) cliArgs {
	a := cliArgs{configPath: config.DefaultConfigFileName}
	for i := 0; i < len(argv); i++ {
		switch argv[i] {
		case "-c", "--config":
			if i+1 < len(argv) {
				i++
				a.configPath = argv[i]
			}
		case "-listen":
			if i+1 < len(argv) {
				i++
				a.listen = argv[i]
			}
		case "-fan-clean":
			a.fanClean = true
		case "-reset":
			a.reset = true
		case "-info":
			a.info = true
		}
	}
	return a
}

func main() {
	args := parseArgs(os.Args[1:])
	logger := agentlog.New(os.Stderr, "airmonitor: ")

	cfg, err := config.Load(args.configPath)
	if err != nil {
		logger.Fatalf("loading config %s: %v", args.configPath, err)
	}

	transport := shdlc.NewTransport(cfg.Serial.Port, logger)
	engine := shdlc.NewEngine(transport, logger)
	device := sps30.New(engine)
	store := sink.NewLoggingSink(logger)

	status := &diag.Status{}
	if args.listen != "" {
		go func() {
			logger.Printf("diagnostics listening on %s", args.listen)
			if err := http.ListenAndServe(args.listen, diag.NewRouter(status)); err != nil {
				logger.Printf("diagnostics server stopped: %v", err)
			}
		}()
	}

	ctx := context.Background()

	var runErr error
	switch {
	case args.fanClean:
		runErr = shdlc.WithPort(ctx, transport, func() error { return device.StartFanCleaning(ctx) })
	case args.reset:
		runErr = shdlc.WithPort(ctx, transport, func() error { return device.DeviceReset(ctx) })
	case args.info:
		runErr = shdlc.WithPort(ctx, transport, func() error {
			for name, kind := range map[string]byte{
				"product name":  sps30.InfoProductName,
				"article code":  sps30.InfoArticleCode,
				"serial number": sps30.InfoSerialNumber,
			} {
				s, err := device.DeviceInfo(ctx, kind)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Printf("%s: %s\n", name, s)
			}
			return nil
		})
	default:
		runErr = runCycle(ctx, transport, device, store, cfg, status, logger)
	}

	if runErr != nil {
		logger.Printf("cycle failed: %v", runErr)
		var terr *shdlc.TransportError
		if asTransportOpenFailure(runErr, &terr) {
			os.Exit(1)
		}
		os.Exit(0)
	}
}

// asTransportOpenFailure reports whether err is a *shdlc.TransportError
// from the "open" operation, the only failure that exits the process
// non-zero per spec.md section 7.
func asTransportOpenFailure(err error, target **shdlc.TransportError) bool {
	for err != nil {
		if te, ok := err.(*shdlc.TransportError); ok {
			*target = te
			return te.Op == "open"
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func runCycle(ctx context.Context, transport *shdlc.Transport, device *sps30.Device, store sink.Sink, cfg config.Config, status *diag.Status, logger *log.Logger) error {
	return shdlc.WithPort(ctx, transport, func() error {
		if err := device.StartMeasurement(ctx); err != nil {
			status.RecordFailure(err)
			return err
		}

		logger.Printf("fan warming up for %s", sps30.WarmupDuration)
		select {
		case <-time.After(sps30.WarmupDuration):
		case <-ctx.Done():
			return ctx.Err()
		}

		sample, err := sps30.SampleAverage(ctx, device, cfg.Sampling.Count, util.SecsToDuration(cfg.Sampling.IntervalSecs))
		if err != nil {
			status.RecordFailure(err)
			_ = device.StopMeasurement(ctx)
			return err
		}

		record := sink.Record{
			Measurement: cfg.SensirionSPS30.Measurement,
			Timestamp:   time.Now(),
			Fields:      sample.AsMap(),
		}
		if err := store.Write(ctx, record); err != nil {
			status.RecordFailure(err)
			_ = device.StopMeasurement(ctx)
			return fmt.Errorf("writing sample: %w", err)
		}

		status.RecordSuccess(sample)
		if err := device.StopMeasurement(ctx); err != nil {
			return err
		}
		logger.Printf("cycle complete: %s", strings.TrimSpace(fmt.Sprintf("%+v", sample)))
		return nil
	})
}
