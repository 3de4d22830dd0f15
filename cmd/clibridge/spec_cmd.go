package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/clibridge/internal/spec"
)

func runSpecNoun(args []string) int {
	if len(args) < 1 {
		printSpecNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSpecNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runSpecCheck(actionArgs)
	case "show":
		return runSpecShow(actionArgs)
	case "hash":
		return runSpecHash(actionArgs)
	case "lock":
		return runSpecLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown spec action: %s\n", action)
		return 1
	}
}

func printSpecNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: clibridge spec <action>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  check <file>            Parse and validate an OpenCLI document")
	fmt.Fprintln(w, "  show <file> [--format]  Print the canonical form (json or yaml)")
	fmt.Fprintln(w, "  hash <file>             Print the summary hash and BLAKE3 digest")
	fmt.Fprintln(w, "  lock [--check]          Record the configured spec as the known version")
}

// singleArg parses fs and returns its single positional argument.
func singleArg(fs *flag.FlagSet, args []string, usage string) (string, bool) {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return "", false
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, usage)
		return "", false
	}
	return fs.Arg(0), true
}

func runSpecCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	path, ok := singleArg(fs, args, "Usage: clibridge spec check <file>")
	if !ok {
		return 1
	}

	s, err := spec.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", failMark(), err)
		return 1
	}

	count := 0
	_ = s.Walk(func([]string, *spec.Command) error {
		count++
		return nil
	})
	title := s.Info.Title
	if title == "" {
		title = path
	}
	fmt.Printf("%s %s is valid: %d operations, %d global options\n",
		okMark(), styles.Title.Render(title), count, len(s.Options))
	return 0
}

func runSpecShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	format := fs.String("format", "json", "Output format: json or yaml")
	path, ok := singleArg(fs, args, "Usage: clibridge spec show [--format json|yaml] <file>")
	if !ok {
		return 1
	}

	s, err := spec.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load spec: %v\n", err)
		return 1
	}

	var out []byte
	switch *format {
	case "json":
		out, err = spec.Canonical(s)
		out = append(out, '\n')
	case "yaml":
		out, err = yaml.Marshal(s)
	default:
		fmt.Fprintf(os.Stderr, "Unknown format %q (want json or yaml)\n", *format)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render spec: %v\n", err)
		return 1
	}
	_, _ = os.Stdout.Write(out)
	return 0
}

func runSpecHash(args []string) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	path, ok := singleArg(fs, args, "Usage: clibridge spec hash [--json] <file>")
	if !ok {
		return 1
	}

	s, err := spec.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load spec: %v\n", err)
		return 1
	}
	digest, err := spec.Digest(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to digest spec: %v\n", err)
		return 1
	}

	hash := fmt.Sprintf("%016x", spec.Hash(s))
	if *jsonOut {
		return printJSON(map[string]string{"hash": hash, "digest": digest})
	}
	fmt.Printf("hash:   %s\n", hash)
	fmt.Printf("digest: %s\n", digest)
	return 0
}

func runSpecLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := configFlag(fs)
	check := fs.Bool("check", false, "Only compare; exit 1 if the spec changed")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	a, err := openApp(ctx, *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	path := a.cfg.Program.Spec
	unchanged, err := a.specs.Unchanged(ctx, path, a.spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to compare spec: %v\n", err)
		return 1
	}

	switch {
	case unchanged:
		fmt.Printf("%s %s unchanged\n", okMark(), path)
		return 0
	case *check:
		fmt.Printf("%s %s changed since last lock\n", failMark(), path)
		return 1
	}

	if err := a.specs.Record(ctx, path, a.spec); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to record spec: %v\n", err)
		return 1
	}
	rec, err := a.specs.Get(ctx, path)
	if err != nil || rec == nil {
		fmt.Fprintf(os.Stderr, "Failed to read back spec record: %v\n", err)
		return 1
	}
	fmt.Printf("%s %s recorded (digest %s)\n", okMark(), path, styles.Dim.Render(rec.Digest))
	return 0
}
