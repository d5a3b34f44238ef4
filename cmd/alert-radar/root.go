package main

import (
	"fmt"
	"time"

	"github.com/hervehildenbrand/alert-radar/pkg/config"
	"github.com/hervehildenbrand/alert-radar/pkg/logging"
	"github.com/hervehildenbrand/alert-radar/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const version = "0.1.0"

// app carries the state shared by all subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// flagKeys maps each persistent flag to its configuration key.
var flagKeys = map[string]string{
	"config":            config.KeyConfigFile,
	"in":                config.KeyInput,
	"year":              config.KeyYear,
	"timezone":          config.KeyTimezone,
	"top":               config.KeyTop,
	"burst-threshold":   config.KeyBurstThreshold,
	"burst-window":      config.KeyBurstWindow,
	"burst-autoscale":   config.KeyBurstAutoscale,
	"require-priority":  config.KeyGrammarRequirePriority,
	"require-signature": config.KeyGrammarRequireSignature,
	"jsonl":             config.KeyOutputJSONL,
	"findings-jsonl":    config.KeyOutputFindingsJSONL,
	"database-driver":   config.KeyDatabaseDriver,
	"database-url":      config.KeyDatabaseURL,
	"redis-url":         config.KeyRedisURL,
	"redis-channel":     config.KeyRedisChannel,
	"redis-ttl":         config.KeyRedisTTL,
	"feed-url":          config.KeyFeedURL,
	"feed-subscribe":    config.KeyFeedSubscribe,
	"feed-idle-timeout": config.KeyFeedIdleTimeout,
	"labels-file":       config.KeyLabelsFile,
	"labels-table":      config.KeyLabelsTable,
	"metrics-textfile":  config.KeyMetricsTextfile,
	"log-level":         config.KeyLogLevel,
	"log-format":        config.KeyLogFormat,
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "alert-radar",
		Short: "SOC triage report and burst detection for Snort fast-alert logs",
		Long: `alert-radar parses Snort "fast" alert lines, summarizes them by severity,
source address and signature, and flags sources that raise too many alerts
within a sliding time window.

Without a subcommand it prints the full report.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runReport,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("alert-radar version %s\n", version))

	registerFlags(root.PersistentFlags())
	for name, key := range flagKeys {
		if err := a.v.BindPFlag(key, root.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "report",
			Short: "Print the triage report (default)",
			Args:  cobra.NoArgs,
			RunE:  a.runReport,
		},
		&cobra.Command{
			Use:   "parse",
			Short: "Normalize alert lines and write them as JSONL",
			Long:  "Writes one JSON object per event to --jsonl, or to stdout when --jsonl is empty.",
			Args:  cobra.NoArgs,
			RunE:  a.runParse,
		},
		&cobra.Command{
			Use:   "detect",
			Short: "Run burst detection and write findings as JSONL",
			Long:  "Writes one JSON object per burst to --findings-jsonl, or to stdout when it is empty. The threshold is never auto-scaled.",
			Args:  cobra.NoArgs,
			RunE:  a.runDetect,
		},
	)
	return root
}

func registerFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML config file")
	fs.String("in", "", `Path to Snort fast.log / alert log ("-" for stdin)`)
	fs.Int("year", time.Now().Year(), "Year to inject into Snort timestamps")
	fs.String("timezone", "", "IANA time zone of the timestamps (empty for zone-less)")
	fs.Int("top", 10, "Top N to display")
	fs.Int("burst-threshold", 3, "Alert count threshold for burst detection")
	fs.Int("burst-window", 300, "Burst time window in seconds")
	fs.Bool("burst-autoscale", true, "Scale the report threshold down for inputs smaller than it")
	fs.Bool("require-priority", false, "Only accept lines carrying a [Priority: N] field")
	fs.Bool("require-signature", false, "Only accept lines whose signature is gid:sid:rev")
	fs.String("jsonl", "", "Write parsed events as JSONL to this path")
	fs.String("findings-jsonl", "", "Write burst findings as JSONL to this path")
	fs.String("database-driver", "postgres", "SQL driver for --database-url (postgres or sqlite3)")
	fs.String("database-url", "", "Store events and findings in this database (optional)")
	fs.String("redis-url", "", "Publish findings to this Redis (optional, e.g. redis://localhost:6379)")
	fs.String("redis-channel", "alert-radar:bursts", "Redis channel and list key prefix")
	fs.Duration("redis-ttl", 48*time.Hour, "TTL of per-address finding lists (0 keeps them)")
	fs.String("feed-url", "", "Read alert lines from this WebSocket instead of --in")
	fs.String("feed-subscribe", "", "JSON message sent after connecting to the feed")
	fs.Duration("feed-idle-timeout", 30*time.Second, "End the feed session after this long without data")
	fs.String("labels-file", "", "CSV of addr,label used to annotate top sources")
	fs.String("labels-table", "", "Database table of addr,label used when --labels-file is empty")
	fs.String("metrics-textfile", "", "Write run counters to this Prometheus textfile")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", logging.FormatConsole, "Log format (console or json)")
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.metrics = metrics.NewRecorder()
	return nil
}
