// alert-radar - triage report and burst detection for Snort fast-alert logs.
//
// Reads a fast.log (or a WebSocket feed of alert lines), normalizes each
// alert, flags sources that fire too many alerts in a sliding window, and
// prints a SOC-style summary.
//
// Usage:
//
//	alert-radar --in /var/log/snort/alert --burst-threshold 5 --burst-window 300
//	alert-radar parse --in alert --jsonl events.jsonl
//	alert-radar detect --feed-url ws://sensor:8080/alerts --redis-url redis://localhost:6379
//
// Every flag can also be set from the environment (ALERT_RADAR_BURST_THRESHOLD,
// ALERT_RADAR_DATABASE_URL, ...) or a YAML file passed with --config.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
