// Command civicscreen runs civic issue reports through the admission pipeline.
//
// Usage:
//
//	civicscreen screen [-in reports.jsonl] [-out verdicts.jsonl]
//	civicscreen dataset-count
package main

import (
	"fmt"
	"log/slog"
	"os"
)

const usage = `civicscreen: civic report admission pipeline

Usage:
  civicscreen <command> [flags]

Commands:
  screen          Read report JSONL, print verdict JSONL, append to the dataset
  dataset-count   Record counts of the SQLite dataset (requires CIVIC_DATASET_SQLITE)

Environment:
  CIVIC_DATASET                    JSONL dataset path (default: data/dataset.jsonl, "-" disables)
  CIVIC_DATASET_SQLITE             SQLite dataset path (optional)
  CIVIC_CLASSIFIER_URL             Model server base URL (optional; keyword classifier otherwise)
  CIVIC_CLASSIFIER_RPS             Model server request rate (default: unlimited)
  CIVIC_FETCH_TIMEOUT              Image download timeout (default: 5s)
  CIVIC_FETCH_RPS                  Image download rate (default: unlimited)
  CIVIC_IMAGE_THRESHOLD            pHash Hamming distance for duplicates (default: 5)
  CIVIC_LOCATION_THRESHOLD_METERS  Geo duplicate radius (default: 20)
  CIVIC_WORKERS                    Concurrent reports (default: 4)
  CIVIC_METRICS_ADDR               Serve Prometheus metrics on this address (optional)
  LOG_LEVEL                        debug, info, warn, error (default: info)

Run 'civicscreen <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cfg := loadConfig()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.slogLevel()})))

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "screen":
		err = runScreen(cfg, args)
	case "dataset-count":
		err = runDatasetCount(cfg, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		slog.Error("civicscreen: command failed", "command", cmd, "error", err.Error())
		os.Exit(1)
	}
}
