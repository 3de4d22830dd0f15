package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mattjoyce/clibridge/internal/argv"
	"github.com/mattjoyce/clibridge/internal/invoke"
	"github.com/mattjoyce/clibridge/internal/response"
	"github.com/mattjoyce/clibridge/internal/spec"
)

func runOpsNoun(args []string) int {
	if len(args) < 1 {
		printOpsNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printOpsNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		return runOpsList(actionArgs)
	case "describe":
		return runOpsDescribe(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown ops action: %s\n", action)
		return 1
	}
}

func printOpsNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: clibridge ops <action>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  list [--json]            List callable operations")
	fmt.Fprintln(w, "  describe <op> [--json]   Show parameters, exit codes and examples")
}

type operationJSON struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  []invoke.Parameter `json:"parameters"`
}

func runOpsList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := configFlag(fs)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	a, err := openApp(context.Background(), *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	ops := a.table.Operations()
	if *jsonOut {
		out := make([]operationJSON, 0, len(ops))
		for _, op := range ops {
			params := op.Parameters()
			if params == nil {
				params = []invoke.Parameter{}
			}
			out = append(out, operationJSON{Name: op.Name, Description: op.Command.Description, Parameters: params})
		}
		return printJSON(out)
	}

	rows := [][]string{{"OPERATION", "PARAMETERS", "DESCRIPTION"}}
	for _, op := range ops {
		rows = append(rows, []string{op.Name, paramSummary(op.Parameters()), op.Command.Description})
	}
	fmt.Print(table(rows))
	return 0
}

// paramSummary renders parameters in usage style: <required> [optional] [--flag] [--opt=v].
func paramSummary(params []invoke.Parameter) string {
	var parts []string
	for _, p := range params {
		switch {
		case p.Kind == invoke.Positional && p.Required:
			parts = append(parts, "<"+p.Name+">")
		case p.Kind == invoke.Positional:
			parts = append(parts, "["+p.Name+"]")
		case p.Global:
			continue
		case p.Kind == invoke.FlagOption:
			parts = append(parts, "[--"+p.Name+"]")
		default:
			parts = append(parts, "[--"+p.Name+"=v]")
		}
	}
	return strings.Join(parts, " ")
}

func runOpsDescribe(args []string) int {
	name, rest := splitOperation(args)
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	configPath := configFlag(fs)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(rest); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if name == "" {
		fmt.Fprintln(os.Stderr, "Usage: clibridge ops describe <op> [--json]")
		return 1
	}

	a, err := openApp(context.Background(), *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	op, err := a.table.Lookup(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", failMark(), err)
		return 1
	}

	params := op.Parameters()
	if *jsonOut {
		if params == nil {
			params = []invoke.Parameter{}
		}
		return printJSON(operationJSON{Name: op.Name, Description: op.Command.Description, Parameters: params})
	}

	fmt.Println(styles.Title.Render(a.cfg.Program.Executable + " " + op.Name))
	if op.Command.Description != "" {
		fmt.Println(op.Command.Description)
	}

	if len(params) > 0 {
		fmt.Println()
		rows := [][]string{{"PARAMETER", "KIND", "REQUIRED", "DESCRIPTION"}}
		for _, p := range params {
			kind := string(p.Kind)
			if p.Global {
				kind += " (global)"
			}
			rows = append(rows, []string{p.Name, kind, strconv.FormatBool(p.Required), p.Description})
		}
		fmt.Print(table(rows))
	}
	printExitCodes(op.Command.ExitCodes)
	printExamples(op.Command.Examples)
	return 0
}

func printExitCodes(codes []spec.ExitCode) {
	if len(codes) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(styles.Header.Render("Exit codes:"))
	for _, c := range codes {
		fmt.Printf("  %3d  %s\n", c.Code, c.Description)
	}
}

func printExamples(examples []spec.Example) {
	if len(examples) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(styles.Header.Render("Examples:"))
	for _, e := range examples {
		fmt.Printf("  %s\n", styles.Highlight.Render(e.Command))
		if e.Description != "" {
			fmt.Printf("      %s\n", styles.Dim.Render(e.Description))
		}
	}
}

// splitOperation takes leading words up to the first flag as the operation
// name and returns the remaining arguments.
func splitOperation(args []string) (string, []string) {
	var words []string
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		words = append(words, args[0])
		args = args[1:]
	}
	return strings.Join(words, " "), args
}

// setFlag collects repeated --set name=value pairs. A bare name sets true.
type setFlag map[string]any

func (s setFlag) String() string { return fmt.Sprint(map[string]any(s)) }

func (s setFlag) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if name == "" {
		return fmt.Errorf("expected name=value, got %q", v)
	}
	if !ok {
		s[name] = true
		return nil
	}
	s[name] = value
	return nil
}

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func printRunHelp() {
	fmt.Print(`Usage: clibridge run <op> [flags] [-- args...]

Invoke an operation. Words before the first flag name the operation,
e.g. "clibridge run task add --arg 'Buy milk' --set priority=high".

Flags:
  --config <path>     Configuration file
  --set name=value    Set a parameter; a bare name sets a flag (repeatable)
  --arg value         Positional argument in ordinal order (repeatable)
  --timeout <dur>     Override the configured timeout
  --dry-run           Print the command line without running it
  --json              Print the response envelope as JSON

The exit status is the program's, even when the operation accepts it as
success, or 1 when the program did not exit on its own.
Input errors exit with 2 and start nothing.
`)
}

func runRun(args []string) int {
	name, rest := splitOperation(args)

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := configFlag(fs)
	sets := setFlag{}
	var positional listFlag
	fs.Var(sets, "set", "Set a parameter (name=value); repeatable")
	fs.Var(&positional, "arg", "Positional argument; repeatable")
	timeout := fs.Duration("timeout", 0, "Override the configured timeout")
	dryRun := fs.Bool("dry-run", false, "Print the command line without running it")
	jsonOut := fs.Bool("json", false, "Print the response envelope as JSON")
	if err := fs.Parse(rest); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 2
	}
	if name == "" {
		printRunHelp()
		return 2
	}
	positional = append(positional, fs.Args()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	in := invoke.Input{Values: sets, Args: positional, Timeout: *timeout}

	if *dryRun {
		c, err := a.invoker.Prepare(name, in)
		if err != nil {
			return inputError(err)
		}
		fmt.Println(c.Render())
		return 0
	}

	resp, err := a.invoker.Run(ctx, name, in)
	if err != nil {
		return inputError(err)
	}

	if *jsonOut {
		if err := response.Encode(os.Stdout, resp); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return exitStatus(resp)
	}

	if resp.Output != "" {
		fmt.Println(resp.Output)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", resp.ExitCode)
		}
		fmt.Fprintf(os.Stderr, "%s %s\n", failMark(), msg)
	}
	return exitStatus(resp)
}

func inputError(err error) int {
	fmt.Fprintf(os.Stderr, "%s %v\n", failMark(), err)
	var missing *argv.MissingArgumentError
	if errors.As(err, &missing) {
		fmt.Fprintln(os.Stderr, styles.Dim.Render("Hint: see 'clibridge ops describe "+strings.Join(missing.Command, " ")+"'"))
	}
	return 2
}

// exitStatus mirrors the program's exit code, including a non-zero code the
// operation accepts as success.
func exitStatus(resp response.CliResponse) int {
	switch {
	case resp.ExitCode > 0:
		return resp.ExitCode
	case resp.Success:
		return 0
	default:
		return 1
	}
}
