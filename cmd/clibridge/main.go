package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/clibridge/internal/config"
	"github.com/mattjoyce/clibridge/internal/history"
	"github.com/mattjoyce/clibridge/internal/invoke"
	"github.com/mattjoyce/clibridge/internal/log"
	"github.com/mattjoyce/clibridge/internal/process"
	"github.com/mattjoyce/clibridge/internal/spec"
	"github.com/mattjoyce/clibridge/internal/speccache"
	"github.com/mattjoyce/clibridge/internal/storage"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// defaultConfigPath is used when neither --config nor CLIBRIDGE_CONFIG is set.
const defaultConfigPath = "clibridge.yaml"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "spec":
		return runSpecNoun(args)
	case "ops":
		return runOpsNoun(args)
	case "run":
		if hasHelpFlag(args) {
			printRunHelp()
			return 0
		}
		return runRun(args)
	case "history":
		return runHistoryNoun(args)
	case "config":
		return runConfigNoun(args)
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `clibridge - call a command-line program by operation name

Usage:
  clibridge <noun> <action> [flags]

Spec Commands:
  spec check <file>      Parse and validate an OpenCLI document
  spec show <file>       Print the canonical form (--format json|yaml)
  spec hash <file>       Print the summary hash and digest
  spec lock              Record the configured spec as known (--check to compare only)

Operation Commands:
  ops list               List callable operations
  ops describe <op>      Show the parameters of one operation
  run <op> [flags]       Invoke an operation

History Commands:
  history list           Show recent invocations
  history show <id>      Show one invocation

Config Commands:
  config check           Validate configuration and integrity
  config lock            Authorize current state (update integrity hashes)

General:
  serve                  Run the HTTP API in foreground
  version                Show version information
  help                   Show this help message

Config-backed commands accept --config (default $CLIBRIDGE_CONFIG or ./clibridge.yaml).
`)
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: clibridge version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		return printJSON(info)
	}

	fmt.Printf("clibridge %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

// configFlag registers --config on fs.
func configFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("CLIBRIDGE_CONFIG")
	if def == "" {
		def = defaultConfigPath
	}
	return fs.String("config", def, "Path to configuration file or directory")
}

// app is the runtime assembled from a configuration file.
type app struct {
	cfg     *config.Config
	spec    *spec.Spec
	table   *invoke.Table
	db      *sql.DB
	specs   *speccache.Store
	history *history.Store
	invoker *invoke.Invoker
	logger  *slog.Logger
}

// openApp loads the config and spec, opens the state database and builds
// the invoker. A spec that differs from the last recorded one is reported
// but still used.
func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")

	s, err := spec.Load(cfg.Program.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to load spec: %w", err)
	}

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.State.Path, err)
	}

	a := &app{
		cfg:    cfg,
		spec:   s,
		table:  invoke.NewTable(s),
		db:     db,
		specs:  speccache.NewStore(db),
		logger: logger,
	}

	unchanged, err := a.specs.Unchanged(ctx, cfg.Program.Spec, s)
	if err != nil {
		logger.Warn("failed to compare spec with recorded version", "spec", cfg.Program.Spec, "error", err)
	} else if !unchanged {
		logger.Warn("spec differs from the recorded version; run 'clibridge spec lock' to accept it", "spec", cfg.Program.Spec)
	}

	opts := []invoke.Option{
		invoke.WithWorkingDir(cfg.Program.WorkingDir),
		invoke.WithEnv(cfg.Program.Env),
		invoke.WithTimeout(cfg.Program.Timeout),
		invoke.WithSuccessCodes(cfg.Program.SuccessCodes...),
		invoke.WithLogger(log.WithComponent("invoke")),
	}
	if cfg.History.Enabled {
		a.history = history.NewStore(db)
		opts = append(opts, invoke.WithRecorder(a.history))
	}

	ex := process.NewOSExecutor(
		process.WithKillGrace(cfg.Program.KillGrace),
		process.WithLogger(log.WithComponent("process")),
	)
	a.invoker = invoke.New(cfg.Program.Executable, a.table, ex, opts...)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// pruneHistory applies the retention policy; failures are logged.
func (a *app) pruneHistory(ctx context.Context) {
	if a.history == nil || a.cfg.History.Retention <= 0 {
		return
	}
	n, err := a.history.Prune(ctx, a.cfg.History.Retention)
	if err != nil {
		a.logger.Warn("failed to prune invocation history", "error", err)
		return
	}
	if n > 0 {
		a.logger.Info("pruned invocation history", "removed", n, "retention", a.cfg.History.Retention)
	}
}
