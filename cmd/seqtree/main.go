// Copyright 2025 The SeqTree Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the approximate sequence search server and CLI [DBG]
application.

Note: This is a BETA release. APIs and functionality may rapidly change.

SeqTree indexes named reference sequences (FASTA records) in a trie over a
packed nucleotide or amino acid alphabet and answers "which references are
within this many mismatches, deletions and insertions of my query" without
scanning them. It can operate as a MessagePack IPC server for integration
with other tools, or as an interactive shell for testing and debugging.

# Usage

Serve the FASTA files of the configured data directory:

	seqtree serve

Use a custom data directory and enable debug mode:

	seqtree serve --data /path/to/refs -d

Build a snapshot once and serve from it:

	seqtree index --data refs/ --out refs.snap
	seqtree serve --snapshot refs.snap

Run the interactive shell with the fuzzy preset:

	seqtree query --preset fuzzy

# Configuration

Runtime configuration lives in a TOML file, created with defaults under
~/.config/seqtree/config.toml when missing:

	[search]
	preset = "strict"
	limit = 16

	[index]
	alphabet = "nucleotide"
	data_dir = "data"
	glob = "*.fa*"
	workers = 4

	[server]
	max_limit = 256
	max_query_length = 4096
	metrics_addr = ":9464"

The "config" command prints the active file and updates search defaults.

# IPC Protocol

The server reads MessagePack requests from stdin and writes one response per
request to stdout. See package server for the message types.

	{"id": "q1", "q": "ATTACACA", "l": 8}

When server.metrics_addr is set, Prometheus metrics are served on /metrics.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bastiangx/seqtree/internal/cli"
	"github.com/bastiangx/seqtree/internal/logger"
	"github.com/bastiangx/seqtree/internal/metrics"
	"github.com/bastiangx/seqtree/internal/utils"
	"github.com/bastiangx/seqtree/pkg/config"
	"github.com/bastiangx/seqtree/pkg/library"
	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/bastiangx/seqtree/pkg/server"
	"github.com/bastiangx/seqtree/pkg/snapshot"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0-beta"
	AppName = "seqtree"
	gh      = "https://github.com/bastiangx/seqtree"
)

var (
	debugMode    bool
	configPath   string
	dataDir      string
	snapshotPath string
	outPath      string
	presetFlag   string
	limitFlag    int

	rootCmd = &cobra.Command{
		Use:   AppName,
		Short: "Approximate search over reference sequences",
		Long: `SeqTree finds the reference sequences within a bounded number of
mismatches, deletions and insertions of a query.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(debugMode)
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the MessagePack IPC server on stdin/stdout",
		RunE:  runServe,
	}

	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "Interactive shell printing the nearest references of typed sequences",
		RunE:  runQuery,
	}

	indexCmd = &cobra.Command{
		Use:   "index",
		Short: "Load FASTA files and write a snapshot of the index",
		RunE:  runIndex,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Show the active config file, or update search defaults in it",
		RunE:  runConfig,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show current version",
		Run: func(cmd *cobra.Command, args []string) {
			showVersion()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "Toggle debug mode")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a custom config file")

	for _, c := range []*cobra.Command{serveCmd, queryCmd, indexCmd} {
		c.Flags().StringVar(&dataDir, "data", "", "Directory containing FASTA files (default from config)")
	}
	for _, c := range []*cobra.Command{serveCmd, queryCmd} {
		c.Flags().StringVar(&snapshotPath, "snapshot", "", "Load the index from a snapshot instead of FASTA files")
		c.Flags().StringVar(&presetFlag, "preset", "", "Penalty preset: strict, fuzzy or custom (default from config)")
		c.Flags().IntVar(&limitFlag, "limit", 0, "Number of matches to return (default from config)")
	}
	configCmd.Flags().StringVar(&presetFlag, "preset", "", "Save a new default penalty preset")
	configCmd.Flags().IntVar(&limitFlag, "limit", 0, "Save a new default match limit")
	indexCmd.Flags().StringVarP(&outPath, "out", "o", "", "Snapshot file to write")
	_ = indexCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(serveCmd, queryCmd, indexCmd, configCmd, versionCmd)
}

// main only wires signals and runs the command tree. Commands do not
// implement search logic themselves.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}

// exitOnSignal ends the process once ctx is cancelled. The IPC and shell
// loops block on stdin and never see the context.
func exitOnSignal(ctx context.Context) {
	go func() {
		<-ctx.Done()
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

// loadConfig reads the config and applies command line overrides.
func loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.LoadConfigWithPriority(configPath)
	if err != nil {
		return nil, "", err
	}
	if dataDir != "" {
		cfg.Index.DataDir = dataDir
	}
	if snapshotPath != "" {
		cfg.Index.Snapshot = snapshotPath
	}
	if presetFlag != "" {
		cfg.Search.Preset = presetFlag
	}
	if limitFlag > 0 {
		cfg.Search.Limit = limitFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("config %s: %w", config.GetActiveConfigPath(path), err)
	}
	log.Debugf("Using config file: (%s)", config.GetActiveConfigPath(path))
	return cfg, path, nil
}

// loadLibrary builds the library from the configured snapshot if there is
// one, from the data directory otherwise.
func loadLibrary(ctx context.Context, cfg *config.Config) (*library.Library, string, error) {
	alphabet, _ := seq.AlphabetByName(cfg.Index.Alphabet)
	lib := library.New(alphabet)

	if cfg.Index.Snapshot != "" {
		n, err := snapshot.LoadInto[[]string](cfg.Index.Snapshot, lib)
		if err != nil {
			return nil, "", fmt.Errorf("loading snapshot: %w", err)
		}
		log.Debugf("Restored %d distinct sequences from %s", n, cfg.Index.Snapshot)
		return lib, cfg.Index.Snapshot, nil
	}

	resolved, err := utils.ResolveDataDir(cfg.Index.DataDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving data dir: %w", err)
	}
	log.Debugf("Using data dir at: %s", resolved)
	stats, err := lib.LoadDir(ctx, resolved, cfg.Index.Glob, cfg.Index.Workers)
	if err != nil {
		return nil, "", err
	}
	if stats.Resolved > 0 {
		log.Warnf("Replaced %d ambiguity symbols by their lowest code", stats.Resolved)
	}
	if stats.Skipped > 0 {
		log.Warnf("Skipped %d records with symbols outside the %s alphabet", stats.Skipped, alphabet)
	}
	return lib, resolved, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	lib, source, err := loadLibrary(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	exitOnSignal(cmd.Context())

	m := metrics.New(lib)
	if addr := cfg.Server.MetricsAddr; addr != "" {
		go serveMetrics(addr, m)
	}

	showStartupInfo(lib, source)
	srv := server.NewServer(lib, cfg, m)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func serveMetrics(addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Debugf("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("Metrics endpoint: %v", err)
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	lib, _, err := loadLibrary(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	exitOnSignal(cmd.Context())

	log.SetReportTimestamp(false)
	log.Debug("Input info:",
		"preset", cfg.Search.Preset,
		"limit", cfg.Search.Limit,
		"maxQueryLength", cfg.Server.MaxQueryLength)

	inputHandler := cli.NewInputHandler(lib, cfg.Search, cfg.Server)
	if err := inputHandler.Start(); err != nil {
		return fmt.Errorf("CLI error: %w", err)
	}
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Index.Snapshot = ""
	lib, source, err := loadLibrary(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if err := snapshot.SaveMap[[]string](outPath, lib); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	log.Infof("Indexed %d segments (%d distinct) from %s into %s", lib.Len(), lib.Distinct(), source, outPath)
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, path, err := config.LoadConfigWithPriority(configPath)
	if err != nil {
		return err
	}
	var preset *string
	var limit *int
	if cmd.Flags().Changed("preset") {
		preset = &presetFlag
	}
	if cmd.Flags().Changed("limit") {
		limit = &limitFlag
	}
	if preset != nil || limit != nil {
		if path == "" {
			return errors.New("no writable config file, running on built-in defaults")
		}
		if err := cfg.Update(path, preset, limit); err != nil {
			return err
		}
	}
	fmt.Println(config.GetActiveConfigPath(path))
	fmt.Printf("preset=%s limit=%d alphabet=%s data_dir=%s\n",
		cfg.Search.Preset, cfg.Search.Limit, cfg.Index.Alphabet, cfg.Index.DataDir)
	return nil
}

func showVersion() {
	banner := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	banner.SetStyles(styles)

	banner.Print("")
	banner.Print("[ SeqTree ] Finds near matches of sequences, fast!")
	banner.Print("", "version", Version)
	banner.Print("")
	banner.Print("use -h or --help to see available commands")
	banner.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the loaded index on stderr.
func showStartupInfo(lib *library.Library, source string) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	fmt.Fprintln(os.Stderr, "===========")
	fmt.Fprintln(os.Stderr, "  SeqTree  ")
	fmt.Fprintln(os.Stderr, "===========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Infof("source: ( %s )", source)
	log.Infof("segments: %d, distinct: %d, nodes: %d", lib.Len(), lib.Distinct(), lib.Stats().LiveNodes())
	log.Info("status: ready")
	fmt.Fprintln(os.Stderr, "===========")
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}
