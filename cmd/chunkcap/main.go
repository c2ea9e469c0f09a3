package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/irctrakz/chunkcap/pkg/config"
	"github.com/irctrakz/chunkcap/pkg/core"
	"github.com/irctrakz/chunkcap/pkg/feed"
	"github.com/irctrakz/chunkcap/pkg/inspect"
	"github.com/irctrakz/chunkcap/pkg/logging"
	"github.com/irctrakz/chunkcap/pkg/pcapfile"
	"github.com/irctrakz/chunkcap/pkg/synth"
	"github.com/irctrakz/chunkcap/pkg/trace"
)

const usage = `usage:
  chunkcap [-config file] replay [-out file.pcap] [-conns id,id] script.jsonl
  chunkcap inspect file.pcap
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		logging.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("chunkcap", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML or JSON config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("missing command")
	}

	switch rest[0] {
	case "replay":
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			return err
		}
		return runReplay(cfg, rest[1:], stdout)
	case "inspect":
		return runInspect(rest[1:], stdout)
	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		if err := config.LoadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func runReplay(cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	out := fs.String("out", "", "capture file (overrides capture.file)")
	conns := fs.String("conns", "", "comma separated connection ids to trace (default all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("replay: exactly one script file expected")
	}
	if *out != "" {
		cfg.Capture.File = *out
	}

	src, err := feed.LoadScriptFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	sopts, err := cfg.Synth()
	if err != nil {
		return err
	}
	d := trace.NewDispatcher(pcapfile.NewWriter(cfg.Capture.File), synth.New(sopts), cfg.DispatcherOptions()...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(trace.NewCollector(d))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Admin.Listen != "" {
		srv, err := startAdmin(cfg.Admin, reg)
		if err != nil {
			return err
		}
		defer srv.Close()
	}
	if iv, _ := cfg.MetricsInterval(); iv > 0 {
		go runMetricsReporter(ctx, d, iv, cfg.Metrics.Format)
	}

	tr := trace.NewTracer(src, d)
	defer tr.Close()

	armed, err := tr.ArmMatching(connFilter(*conns))
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	logging.InfoWithFields(logging.Fields{"armed": armed, "file": cfg.Capture.File}, "replay starting")

	stats, err := src.Play(ctx)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	dumpMetrics(d, cfg.Metrics.Format)
	fmt.Fprintf(stdout, "wrote %d events (%d skipped) to %s\n", stats.Delivered, stats.Skipped, cfg.Capture.File)
	fmt.Fprintln(stdout, "note: IP and TCP checksums are zero; disable checksum validation in your analyzer")
	return nil
}

func connFilter(list string) func(core.ConnInfo) bool {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil
	}
	want := make(map[core.ConnID]bool)
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			want[core.ConnID(id)] = true
		}
	}
	return func(ci core.ConnInfo) bool { return want[ci.ID] }
}

func runInspect(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("inspect: exactly one capture file expected")
	}
	c, err := inspect.Read(args[0])
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	fmt.Fprintf(stdout, "linktype=%d snaplen=%d records=%d\n", c.LinkType, c.SnapLen, len(c.Records))
	for i, r := range c.Records {
		fmt.Fprintf(stdout, "%4d %s %s %s:%d > %s:%d seq=%d len=%d\n",
			i, r.Timestamp.UTC().Format("15:04:05.000000"), r.Family,
			r.SrcIP, r.SrcPort, r.DstIP, r.DstPort, r.Seq, len(r.Payload))
	}
	for _, f := range c.Flows() {
		fmt.Fprintf(stdout, "flow %s > %s records=%d bytes=%d\n", f.Src, f.Dst, f.Records, f.Bytes)
	}
	return nil
}
