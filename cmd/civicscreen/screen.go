package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	civicscreen "github.com/anatolykoptev/go-civicscreen"
	"github.com/anatolykoptev/go-civicscreen/dataset"
	"github.com/anatolykoptev/go-civicscreen/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const maxReportLine = 1 << 20

func runScreen(cfg *config, args []string) error {
	fs := flag.NewFlagSet("screen", flag.ExitOnError)
	inPath := fs.String("in", "-", "report JSONL input (\"-\" = stdin)")
	outPath := fs.String("out", "-", "verdict JSONL output (\"-\" = stdout)")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in, err := openInput(*inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := openOutput(*outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	sink, closeSink, err := openSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	text, image := civicscreen.LoadClassifiers(ctx, civicscreen.ModelOpts{
		URL:    cfg.ClassifierURL,
		RPS:    cfg.ClassifierRPS,
		Logger: slog.Default(),
	})

	pcfg := &civicscreen.Config{
		FetchTimeout:            cfg.FetchTimeout,
		TextClassifier:          text,
		ImageClassifier:         image,
		Sink:                    sink,
		ImageThreshold:          cfg.ImageThreshold,
		LocationThresholdMeters: cfg.LocationThresholdMeters,
	}
	if cfg.ImageThreshold == 0 {
		pcfg.ImageThreshold = -1 // exact hash matches only
	}
	if cfg.FetchRPS > 0 {
		pcfg.FetchLimiter = rate.NewLimiter(rate.Limit(cfg.FetchRPS), 1)
	}

	if cfg.MetricsAddr != "" {
		metrics.Register()
		metrics.Instrument(pcfg)
		srv := serveMetrics(cfg.MetricsAddr)
		defer shutdown(srv)
	}

	pipeline := civicscreen.NewPipeline(pcfg)

	reports, err := readReports(in)
	if err != nil {
		return err
	}

	start := time.Now()
	verdicts := pipeline.SubmitBatch(ctx, reports, cfg.Workers)
	if cfg.MetricsAddr != "" {
		metrics.ObserveRegistries(pipeline.Store())
	}

	if err := writeVerdicts(out, verdicts); err != nil {
		return err
	}

	accepted := 0
	for _, v := range verdicts {
		if v.Status == civicscreen.StatusAccepted {
			accepted++
		}
	}
	slog.Info("civicscreen: batch done",
		"reports", len(verdicts), "accepted", accepted, "rejected", len(verdicts)-accepted,
		"took", time.Since(start).String())
	return nil
}

// readReports decodes one report per line. Blank lines are skipped; invalid
// lines are logged and skipped so one bad report does not stop the batch.
func readReports(r io.Reader) ([]civicscreen.Report, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxReportLine)

	var reports []civicscreen.Report
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rep civicscreen.Report
		if err := json.Unmarshal(raw, &rep); err != nil {
			slog.Warn("civicscreen: skipping malformed report", "line", line, "error", err.Error())
			continue
		}
		if err := rep.Validate(); err != nil {
			slog.Warn("civicscreen: skipping invalid report", "line", line, "error", err.Error())
			continue
		}
		reports = append(reports, rep)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read reports: %w", err)
	}
	return reports, nil
}

func writeVerdicts(w io.Writer, verdicts []civicscreen.Verdict) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, v := range verdicts {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("write verdict %s: %w", v.ReportID, err)
		}
	}
	return bw.Flush()
}

// openSinks opens the configured dataset sinks. The returned close func is
// always non-nil.
func openSinks(cfg *config) (civicscreen.Sink, func(), error) {
	var (
		sinks   dataset.Multi
		closers []io.Closer
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("civicscreen: closing dataset", "error", err.Error())
			}
		}
	}

	if cfg.DatasetPath != "" && cfg.DatasetPath != "-" {
		j, err := dataset.OpenJSONL(cfg.DatasetPath)
		if err != nil {
			return nil, closeAll, err
		}
		sinks = append(sinks, j)
		closers = append(closers, j)
	}
	if cfg.DatasetSQLite != "" {
		s, err := dataset.OpenSQLite(cfg.DatasetSQLite)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, s)
		closers = append(closers, s)
	}

	switch len(sinks) {
	case 0:
		return nil, closeAll, nil
	case 1:
		return sinks[0], closeAll, nil
	default:
		return sinks, closeAll, nil
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("civicscreen: serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("civicscreen: metrics server failed", "error", err.Error())
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("civicscreen: metrics shutdown", "error", err.Error())
	}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return f, nil
}
