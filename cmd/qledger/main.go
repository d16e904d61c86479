package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yourorg/qledger/internal/archive"
	"github.com/yourorg/qledger/internal/config"
	"github.com/yourorg/qledger/internal/ledger"
	"github.com/yourorg/qledger/internal/logparse"
	"github.com/yourorg/qledger/internal/verify"
	"github.com/yourorg/qledger/pkg/types"
)

const defaultConfigContent = `site: "https://example.com"
site_host: ""
fingerprint_salt_env: "QLEDGER_SALT"
session_gap_minutes: 30
export_window: "manual"

allow_methods:
  - GET
allow_status:
  - 200
  - 304

governance_paths: []
scope_path: ""
state_path: "state/ledger-state.json"

input:
  path: ""
  format: "csv"
  columns: {}

output:
  ledger_json: "out/q-ledger.json"
  ledger_yaml: "out/q-ledger.yml"
  latest_json: ""
  metrics_markdown: "out/metrics.md"
  metrics_json: "out/metrics.json"
  qmetrics_json: "out/q-metrics.json"
  qmetrics_yaml: "out/q-metrics.yml"

publication:
  base_url: ""
  endpoints: {}
  timeout_seconds: 10
  user_agent: "qledger-verifier"

archive:
  path: "state/archive.db"

log:
  level: "info"
`

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	cfgPath   string
	scopePath string
	verbose   bool
	debug     bool
}

func (f *rootFlags) logger() zerolog.Logger {
	level := zerolog.InfoLevel
	if f.verbose {
		level = zerolog.DebugLevel
	}
	if f.debug {
		level = zerolog.TraceLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "qledger",
		Short: "Session ledger pipeline CLI",
	}

	root.PersistentFlags().StringVar(&flags.cfgPath, "config", "", "config file path")
	root.PersistentFlags().StringVar(&flags.scopePath, "scope", "", "scope file path (overrides config)")
	root.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug output")

	root.AddCommand(newInitCmd())
	root.AddCommand(newNormalizeCmd(flags))
	root.AddCommand(newBuildCmd(flags))
	root.AddCommand(newMetricsCmd(flags))
	root.AddCommand(newVerifyCmd(flags))
	root.AddCommand(newSummaryCmd(flags))

	return root
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.qledger directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			baseDir := filepath.Join(home, ".qledger")
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			dbPath := filepath.Join(baseDir, "archive.db")
			s, err := archive.Open(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "archive ready", dbPath)
			fmt.Fprintln(cmd.OutOrStdout(), "please set site and input in", cfgFile)
			return nil
		},
	}
}

func newNormalizeCmd(flags *rootFlags) *cobra.Command {
	var provider, input, output, outputFormat, defaultHost string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Convert a provider access log into the normalized format",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.logger()
			cfg, err := config.Load(flags.cfgPath)
			if err != nil {
				return err
			}

			var stats logparse.Stats
			var rows []types.NormalizedRequest
			switch provider {
			case logparse.ProviderCloudflareCSV:
				cols := logparse.FromConfigColumns(cfg.Input.Columns, logparse.CloudflareColumns)
				rows, err = logparse.ParseCloudflareCSV(input, cols, &stats)
			case logparse.ProviderNginxCombined:
				rows, err = logparse.ParseNginxCombined(input, defaultHost, &stats)
			case logparse.ProviderAWSALB:
				rows, err = logparse.ParseAWSALB(input, &stats)
			case logparse.ProviderGenericJSONL:
				cols := logparse.FromConfigColumns(cfg.Input.Columns, logparse.NormalizedColumns)
				rows, err = logparse.ParseGenericJSONLines(input, cols, logparse.ProviderGenericJSONL, &stats)
			default:
				return fmt.Errorf("unknown provider %q", provider)
			}
			if err != nil {
				return err
			}

			var written int
			switch outputFormat {
			case "ndjson":
				written, err = logparse.WriteNDJSON(output, rows)
			case "csv":
				written, err = logparse.WriteCSV(output, rows)
			default:
				return fmt.Errorf("unknown output format %q", outputFormat)
			}
			if err != nil {
				return err
			}

			log.Info().
				Str("provider", provider).
				Int("rows_total", stats.RowsTotal).
				Int("rows_loaded", stats.RowsLoaded).
				Int("rows_skipped", stats.RowsSkipped).
				Int("written", written).
				Str("output", output).
				Msg("normalized")
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", logparse.ProviderCloudflareCSV, "input provider (cloudflare_csv, nginx_combined, aws_alb, generic_jsonl)")
	cmd.Flags().StringVar(&input, "input", "", "input log file")
	cmd.Flags().StringVar(&output, "output", "normalized.ndjson", "output file")
	cmd.Flags().StringVar(&outputFormat, "output-format", "ndjson", "output format (ndjson, csv)")
	cmd.Flags().StringVar(&defaultHost, "default-host", "", "host stamped on hostless log formats")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newVerifyCmd(flags *rootFlags) *cobra.Command {
	var baseURL string
	var timeoutSeconds int
	var ledgerPath, metricsPath string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare published artifacts with local ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.logger()
			cfg, err := config.Load(flags.cfgPath)
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = cfg.Publication.BaseURL
			}
			if baseURL == "" {
				return errors.New("publication base url is not configured")
			}
			if timeoutSeconds == 0 {
				timeoutSeconds = cfg.Publication.TimeoutSeconds
			}
			if ledgerPath == "" {
				ledgerPath = cfg.Output.LedgerJSON
			}
			if metricsPath == "" {
				metricsPath = cfg.Output.QMetricsJSON
			}

			v := verify.New(baseURL, time.Duration(timeoutSeconds)*time.Second)
			if cfg.Publication.UserAgent != "" {
				v.UserAgent = cfg.Publication.UserAgent
			}
			for name, ep := range cfg.Publication.Endpoints {
				v.Endpoints[name] = ep
			}

			locals := map[string]string{
				"q_ledger_json":  ledgerPath,
				"q_ledger_yml":   cfg.Output.LedgerYAML,
				"q_metrics_json": metricsPath,
				"q_metrics_yml":  cfg.Output.QMetricsYAML,
			}
			results := v.VerifyAll(cmd.Context(), locals)

			failed := 0
			for _, r := range results {
				ev := log.Info()
				if !r.OK {
					ev = log.Error()
					failed++
				}
				ev.Str("artifact", r.Name).
					Str("url", r.URL).
					Bool("ok", r.OK).
					Str("local_sha256", r.LocalSHA256).
					Str("remote_sha256", r.RemoteSHA256).
					Str("note", r.Note).
					Msg("verified")
			}
			if failed > 0 {
				return fmt.Errorf("%d artifact(s) differ from published versions", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "publication base url")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "request timeout in seconds")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "local ledger json path")
	cmd.Flags().StringVar(&metricsPath, "metrics", "", "local q-metrics json path")
	return cmd
}

func newSummaryCmd(flags *rootFlags) *cobra.Command {
	var days int
	var outMD, outJSON string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Render a multi-day summary from the run archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.logger()
			cfg, err := config.Load(flags.cfgPath)
			if err != nil {
				return err
			}

			store, err := archive.Open(cfg.Archive.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.LatestPerDay(cmd.Context(), days)
			if err != nil {
				return err
			}
			summary := archive.BuildSummary(records, logparse.FormatUTC(time.Now()))

			if err := ledger.WriteText(outMD, archive.RenderSummaryMarkdown(summary)); err != nil {
				return err
			}
			if outJSON != "" {
				if err := ledger.WriteJSON(outJSON, summary); err != nil {
					return err
				}
			}

			log.Info().
				Int("days_covered", summary.DaysCovered).
				Str("output", outMD).
				Msg("summary written")
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days to cover")
	cmd.Flags().StringVar(&outMD, "out-md", "out/summary.md", "markdown output path")
	cmd.Flags().StringVar(&outJSON, "out-json", "", "optional json output path")
	return cmd
}
