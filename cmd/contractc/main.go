// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"contractc/internal/compiler"
	"contractc/internal/config"
	"contractc/internal/errors"
)

func main() {
	var (
		configFile string
		outDir     string
		emit       string
		noOpt      bool
		registers  int
		verbosity  int
		dumpConfig bool
	)
	flag.StringVar(&configFile, "config", "", "configuration file (default: "+config.DefaultFile+" next to the input)")
	flag.StringVar(&outDir, "o", "", "output directory for .bin, .asm, .ir and -abi.json files")
	flag.StringVar(&emit, "emit", "", "print one artifact to stdout instead: asm, ir or abi")
	flag.BoolVar(&noOpt, "O0", false, "disable every optimization pass")
	flag.IntVar(&registers, "registers", 0, "size of the allocatable register pool")
	flag.IntVar(&verbosity, "v", -1, "log verbosity")
	flag.BoolVar(&dumpConfig, "dump-config", false, "print the effective configuration and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: contractc [OPTIONS] <file.ir>\n\nOPTIONS:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	path := flag.Arg(0)
	if configFile == "" && path != "" {
		configFile = filepath.Join(filepath.Dir(path), config.DefaultFile)
	}
	cfg, err := loadConfig(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if noOpt {
		cfg.Optimize.Inline = false
		cfg.Optimize.Simplify = false
		cfg.Optimize.AggregateLowering = false
	}
	if registers != 0 {
		cfg.Codegen.Registers = registers
	}
	if verbosity >= 0 {
		cfg.Log.Verbosity = verbosity
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	commonlog.Configure(cfg.Log.Verbosity, nil)

	if dumpConfig {
		out, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}
	if path == "" {
		flag.Usage()
		os.Exit(1)
	}

	startTime := time.Now()
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read file: %v\n", err)
		os.Exit(1)
	}

	out, err := compiler.New(cfg).CompileIR(context.Background(), path, string(source))
	duration := formatDuration(time.Since(startTime))
	if err != nil {
		report(errors.NewErrorReporter(path, string(source)), err)
		color.Red("Compilation failed after %s", duration)
		os.Exit(1)
	}

	switch emit {
	case "":
	case "asm":
		fmt.Print(out.Listing())
	case "ir":
		fmt.Print(out.IR())
	case "abi":
		data, err := out.ABIJSON()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
	default:
		fmt.Fprintf(os.Stderr, "unknown -emit value %q\n", emit)
		os.Exit(1)
	}

	if outDir == "" && emit == "" {
		outDir = filepath.Dir(path)
	}
	if outDir != "" {
		paths, err := out.WriteFiles(outDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		color.Green("Compiled %s in %s (%d bytes): %s", path, duration, len(out.Program.Bytecode), strings.Join(paths, ", "))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadOptional(path)
}

func report(reporter *errors.ErrorReporter, err error) {
	var diags errors.Diagnostics
	var single errors.CompilerError
	switch {
	case stderrors.As(err, &diags):
		for _, d := range diags {
			fmt.Print(reporter.FormatError(d))
		}
	case stderrors.As(err, &single):
		fmt.Print(reporter.FormatError(single))
	default:
		if ice, ok := errors.AsInternal(err); ok {
			fmt.Print(reporter.FormatInternal(ice))
			return
		}
		fmt.Fprintln(os.Stderr, color.RedString("error")+": "+err.Error())
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
