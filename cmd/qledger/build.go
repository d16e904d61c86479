package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yourorg/qledger/internal/archive"
	"github.com/yourorg/qledger/internal/config"
	"github.com/yourorg/qledger/internal/ledger"
	"github.com/yourorg/qledger/internal/logparse"
	"github.com/yourorg/qledger/internal/metrics"
	"github.com/yourorg/qledger/internal/scope"
	"github.com/yourorg/qledger/internal/session"
	"github.com/yourorg/qledger/pkg/types"
)

func newBuildCmd(flags *rootFlags) *cobra.Command {
	var input, format, statePath string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the next ledger in the chain from an access log",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.logger()
			cfg, err := config.Load(flags.cfgPath)
			if err != nil {
				return err
			}
			if input != "" {
				cfg.Input.Path = input
			}
			if format != "" {
				cfg.Input.Format = format
			}
			if statePath != "" {
				cfg.StatePath = statePath
			}
			if cfg.Input.Path == "" {
				return fmt.Errorf("no input configured; set input.path or pass --input")
			}

			// Salt must exist before anything is read or written.
			if err := cfg.ValidateBuild(); err != nil {
				return err
			}

			sc, err := loadScope(cfg, flags.scopePath)
			if err != nil {
				return err
			}

			rows, stats, err := readInput(cfg)
			if err != nil {
				return err
			}
			rows = filterRows(rows, cfg, governanceAllowlist(cfg, sc), log)

			inferrer := &session.Inferrer{
				Salt:       cfg.Salt(),
				Gap:        time.Duration(cfg.SessionGapMinutes) * time.Minute,
				SiteHost:   cfg.SiteHost,
				GovPaths:   governanceAllowlist(cfg, sc),
				Categories: sc.CategoryMap(),
			}
			sessions := inferrer.Infer(rows)

			prior, err := ledger.LoadState(cfg.StatePath)
			if err != nil {
				return err
			}

			asm := ledger.Assembler{
				Site:         cfg.Site,
				GapMinutes:   cfg.SessionGapMinutes,
				ExportWindow: cfg.ExportWindow,
			}
			l, next, err := asm.Assemble(sessions, stats, prior, time.Now())
			if err != nil {
				return err
			}

			if err := ledger.WriteJSON(cfg.Output.LedgerJSON, l); err != nil {
				return err
			}
			if err := ledger.WriteYAML(cfg.Output.LedgerYAML, l, ledger.YAMLMirrorHeader); err != nil {
				return err
			}
			if cfg.Output.LatestJSON != "" {
				if err := ledger.WriteJSON(cfg.Output.LatestJSON, l); err != nil {
					return err
				}
			}
			if err := ledger.SaveState(cfg.StatePath, next); err != nil {
				return err
			}

			log.Info().
				Int("rows_total", stats.RowsTotal).
				Int("rows_loaded", stats.RowsLoaded).
				Int("rows_skipped", stats.RowsSkipped).
				Int("sessions", len(l.SessionsInferred)).
				Int("seq", l.LedgerSequence).
				Str("hash", l.Integrity.ContentHashSHA256).
				Msg("ledger built")
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input log file (overrides config)")
	cmd.Flags().StringVar(&format, "format", "", "input format: csv, ndjson or auto (overrides config)")
	cmd.Flags().StringVar(&statePath, "state", "", "chain state file (overrides config)")
	return cmd
}

func newMetricsCmd(flags *rootFlags) *cobra.Command {
	var ledgerPath, archivePath string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Derive metrics and regime classification from a ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.logger()
			cfg, err := config.Load(flags.cfgPath)
			if err != nil {
				return err
			}
			if ledgerPath == "" {
				ledgerPath = cfg.Output.LedgerJSON
			}
			if archivePath == "" {
				archivePath = cfg.Archive.Path
			}

			sc, err := loadScope(cfg, flags.scopePath)
			if err != nil {
				return err
			}

			l, err := readLedger(ledgerPath)
			if err != nil {
				return err
			}

			now := time.Now()
			legacy := metrics.ComputeLegacy(l)
			qm := metrics.ComputeQMetrics(l, sc, provenance(cfg), now)

			if err := ledger.WriteJSON(cfg.Output.MetricsJSON, legacy); err != nil {
				return err
			}
			if err := ledger.WriteText(cfg.Output.MetricsMarkdown, metrics.RenderReport(l, legacy)); err != nil {
				return err
			}
			if err := ledger.WriteJSON(cfg.Output.QMetricsJSON, qm); err != nil {
				return err
			}
			if err := ledger.WriteYAML(cfg.Output.QMetricsYAML, qm, ledger.YAMLMirrorHeader); err != nil {
				return err
			}

			store, err := archive.Open(archivePath)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.RecordRun(cmd.Context(), legacy, qm.Metrics.Rates, now); err != nil {
				return err
			}

			log.Info().
				Int("sessions", legacy.SessionsTotal).
				Str("regime", legacy.Regime).
				Str("rationale", legacy.RegimeRationale).
				Msg("metrics derived")
			return nil
		},
	}
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "ledger json path (overrides config)")
	cmd.Flags().StringVar(&archivePath, "archive", "", "archive db path (overrides config)")
	return cmd
}

func loadScope(cfg *config.Config, override string) (*scope.Scope, error) {
	path := cfg.ScopePath
	if override != "" {
		path = override
	}
	if path == "" {
		return nil, nil
	}
	return scope.Load(path)
}

// governanceAllowlist merges the exact paths from config with the flattened
// scope layers. An empty result means no allowlist filtering.
func governanceAllowlist(cfg *config.Config, sc *scope.Scope) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range cfg.GovernancePaths {
		add(p)
	}
	for _, p := range sc.GovernancePaths() {
		add(p)
	}
	return out
}

func readInput(cfg *config.Config) ([]types.NormalizedRequest, types.InputStats, error) {
	format := strings.ToLower(cfg.Input.Format)
	if format == "" || format == "auto" {
		switch strings.ToLower(filepath.Ext(cfg.Input.Path)) {
		case ".ndjson", ".jsonl", ".json":
			format = "ndjson"
		default:
			format = "csv"
		}
	}

	var stats logparse.Stats
	var rows []types.NormalizedRequest
	var err error
	switch format {
	case "csv":
		cols := logparse.FromConfigColumns(cfg.Input.Columns, logparse.CloudflareColumns)
		rows, err = logparse.ReadCSV(cfg.Input.Path, cols, &stats)
	case "ndjson", "jsonl":
		cols := logparse.FromConfigColumns(cfg.Input.Columns, logparse.NormalizedColumns)
		rows, err = logparse.ReadNDJSON(cfg.Input.Path, cols, &stats)
	default:
		return nil, types.InputStats{}, fmt.Errorf("unknown input format %q", format)
	}
	if err != nil {
		return nil, types.InputStats{}, err
	}
	return rows, types.InputStats{
		RowsTotal:   stats.RowsTotal,
		RowsLoaded:  stats.RowsLoaded,
		RowsSkipped: stats.RowsSkipped,
	}, nil
}

// filterRows keeps only rows matching the allowed methods and statuses, and
// when an allowlist exists, only governance-relevant paths.
func filterRows(rows []types.NormalizedRequest, cfg *config.Config, allowlist []string, log zerolog.Logger) []types.NormalizedRequest {
	methods := map[string]struct{}{}
	for _, m := range cfg.AllowMethods {
		methods[strings.ToUpper(m)] = struct{}{}
	}
	statuses := map[int]struct{}{}
	for _, s := range cfg.AllowStatus {
		statuses[s] = struct{}{}
	}
	allowed := map[string]struct{}{}
	for _, p := range allowlist {
		allowed[p] = struct{}{}
	}

	out := make([]types.NormalizedRequest, 0, len(rows))
	for _, r := range rows {
		if len(methods) > 0 && r.Method != "" {
			if _, ok := methods[strings.ToUpper(r.Method)]; !ok {
				continue
			}
		}
		if len(statuses) > 0 && r.Status != "" {
			code, err := strconv.Atoi(r.Status)
			if err != nil {
				continue
			}
			if _, ok := statuses[code]; !ok {
				continue
			}
		}
		if len(allowed) > 0 {
			if _, ok := allowed[r.Path]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	log.Debug().Int("in", len(rows)).Int("kept", len(out)).Msg("filtered rows")
	return out
}

func readLedger(path string) (*types.Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var l types.Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse ledger: %w", err)
	}
	return &l, nil
}

func provenance(cfg *config.Config) metrics.Provenance {
	base := strings.TrimRight(cfg.Publication.BaseURL, "/")
	prov := metrics.Provenance{Site: cfg.Site}
	if base == "" {
		return prov
	}
	prov.Canonical = base + "/.well-known/q-metrics.json"
	prov.DerivedFrom = []string{base + "/.well-known/q-ledger.json"}
	prov.Traceability = map[string]string{
		"q_ledger":  base + "/.well-known/q-ledger.json",
		"q_metrics": base + "/.well-known/q-metrics.json",
	}
	return prov
}
