package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/clibridge/internal/config"
	"github.com/mattjoyce/clibridge/internal/spec"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: clibridge config <action>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  check   Validate configuration, spec and integrity")
	fmt.Fprintln(w, "  lock    Authorize current state (update integrity hashes)")
}

func printConfigLockHelp() {
	fmt.Println("Usage: clibridge config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize the current configuration and spec by regenerating their integrity hashes.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: clibridge config check [--config PATH]")
	fmt.Println("Validate configuration syntax, the referenced spec, and integrity.")
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		fmt.Println("Validation: failed")
		return 1
	}

	s, err := spec.Load(cfg.Program.Spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Spec error: %v\n", err)
		fmt.Println("Validation: failed")
		return 1
	}

	fmt.Printf("Config:     %s\n", cfg.Path)
	fmt.Printf("Program:    %s\n", cfg.Program.Executable)
	fmt.Printf("Spec:       %s (%s)\n", cfg.Program.Spec, s.Info.Title)

	var warnings []string
	if _, err := config.LoadChecksums(cfg.Dir()); errors.Is(err, config.ErrNoChecksums) {
		fmt.Println("Integrity:  not locked")
		warnings = append(warnings, "no .checksums manifest; run 'clibridge config lock'")
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Integrity error: %v\n", err)
		fmt.Println("Validation: failed")
		return 1
	} else {
		fmt.Println("Integrity:  locked")
	}
	if cfg.API.Enabled && cfg.API.Auth.APIKey != "" && len(cfg.API.Auth.Tokens) > 0 {
		warnings = append(warnings, "api.auth.api_key grants every scope alongside scoped tokens")
	}

	if len(warnings) == 0 {
		fmt.Printf("Validation: %s All checks passed\n", okMark())
		return 0
	}
	fmt.Printf("Validation: %s passed with %d warning(s)\n", okMark(), len(warnings))
	for _, w := range warnings {
		fmt.Printf("  %s  %s\n", styles.Warn.Render("WARN"), w)
	}
	return 0
}

func runConfigLock(args []string) int {
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := configFlag(fs)
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	// Locking exists to accept edits, so the old manifest is not consulted.
	cfg, err := config.LoadUnverified(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	report, err := config.Lock(cfg, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config in %s: %v\n", cfg.Dir(), err)
		return 1
	}

	if isVerbose {
		fmt.Printf("Processing directory: %s\n", report.ConfigDir)
		for _, file := range report.Files {
			if file.Exists {
				fmt.Printf("  HASH %s: %s\n", file.Filename, file.Hash)
				continue
			}
			fmt.Printf("  SKIP %s: not found\n", file.Filename)
		}
		if dryRun {
			fmt.Printf("  DRY-RUN .checksums: %s (not written)\n", report.ChecksumPath)
		} else {
			fmt.Printf("  WROTE .checksums: %s\n", report.ChecksumPath)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed (no files written): %s\n", report.ConfigDir)
	} else {
		fmt.Printf("Successfully locked configuration: %s\n", report.ConfigDir)
	}
	return 0
}
