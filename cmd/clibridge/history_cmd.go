package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mattjoyce/clibridge/internal/history"
)

func runHistoryNoun(args []string) int {
	if len(args) < 1 {
		printHistoryNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printHistoryNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		return runHistoryList(actionArgs)
	case "show":
		return runHistoryShow(actionArgs)
	case "prune":
		return runHistoryPrune(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown history action: %s\n", action)
		return 1
	}
}

func printHistoryNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: clibridge history <action>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  list [--limit N] [--json]   Show recent invocations, newest first")
	fmt.Fprintln(w, "  show <id>                   Show one invocation as JSON")
	fmt.Fprintln(w, "  prune                       Apply history.retention now")
}

// openHistory opens the app and fails when history is disabled.
func openHistory(configPath string) (*app, int) {
	a, err := openApp(context.Background(), configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, 1
	}
	if a.history == nil {
		fmt.Fprintln(os.Stderr, "History is disabled (history.enabled: false)")
		_ = a.Close()
		return nil, 1
	}
	return a, 0
}

func runHistoryList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := configFlag(fs)
	limit := fs.Int("limit", 20, "Maximum number of invocations")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	a, code := openHistory(*configPath)
	if a == nil {
		return code
	}
	defer a.Close()

	entries, err := a.history.Recent(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list invocations: %v\n", err)
		return 1
	}
	if *jsonOut {
		if entries == nil {
			entries = []*history.Entry{}
		}
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println(styles.Dim.Render("No invocations recorded."))
		return 0
	}

	rows := [][]string{{"ID", "OPERATION", "OUTCOME", "EXIT", "DURATION", "COMPLETED"}}
	for _, e := range entries {
		outcome := styles.OK.Render(e.Outcome)
		if !e.Response.Success {
			outcome = styles.Failed.Render(e.Outcome)
		}
		rows = append(rows, []string{
			e.ID,
			e.Operation,
			outcome,
			strconv.Itoa(e.Response.ExitCode),
			e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond).String(),
			e.CompletedAt.Local().Format(time.DateTime),
		})
	}
	fmt.Print(table(rows))
	return 0
}

func runHistoryShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := configFlag(fs)
	id, ok := singleArg(fs, args, "Usage: clibridge history show <id>")
	if !ok {
		return 1
	}

	a, code := openHistory(*configPath)
	if a == nil {
		return code
	}
	defer a.Close()

	entry, err := a.history.Get(context.Background(), id)
	if errors.Is(err, history.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "%s invocation %s not found\n", failMark(), id)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read invocation: %v\n", err)
		return 1
	}
	return printJSON(entry)
}

func runHistoryPrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	a, code := openHistory(*configPath)
	if a == nil {
		return code
	}
	defer a.Close()

	if a.cfg.History.Retention <= 0 {
		fmt.Println(styles.Dim.Render("history.retention is 0; nothing pruned."))
		return 0
	}
	n, err := a.history.Prune(context.Background(), a.cfg.History.Retention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to prune history: %v\n", err)
		return 1
	}
	fmt.Printf("%s removed %d invocation(s) older than %s\n", okMark(), n, a.cfg.History.Retention)
	return 0
}
