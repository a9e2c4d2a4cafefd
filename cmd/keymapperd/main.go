package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/spf13/cobra"
)

var log = logger.GetLogger()

type options struct {
	configDir   string
	logLevel    int
	debug       bool
	noColor     bool
	force256    bool
	silent      bool
	xmodmap     bool
	metricsAddr string
	profile     bool

	console *console
}

func (o *options) configPath() string {
	return filepath.Join(o.configDir, configFile)
}

func (o *options) mappingsDir() string {
	return filepath.Join(o.configDir, mappingsDir)
}

func (o *options) level() int {
	if o.debug {
		return logger.DebugLvl
	}
	return o.logLevel + logger.InfoLvl
}

func NewRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "keymapperd",
		Short:         "Device specific key remapping",
		Long:          `keymapperd grabs input devices and re-emits their events through virtual devices, remapped by per-device mapping files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configDir, "config", defaultConfigDir, "configuration directory, created with defaults when missing")
	flags.IntVar(&opts.logLevel, "loglevel", 1,
		"logging level, each level enables additional information class (0-4)\n"+
			"0: general info (eg. device appearance status)\n"+
			"1: actions (injection start/stop, macro triggers)\n"+
			"2: remapped keys\n"+
			"3: events forwarded unchanged\n"+
			"4: joystick to mouse conversion",
	)
	flags.BoolVar(&opts.debug, "debug", false, "show debug entries")
	flags.BoolVar(&opts.noColor, "nocolor", false, "disable color")
	flags.BoolVar(&opts.force256, "256", false, "force 256 color mode")
	flags.BoolVar(&opts.silent, "silent", false, "no output logging")
	flags.BoolVar(&opts.xmodmap, "xmodmap", false, "extend key symbols with keymap of running X server")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if opts.force256 {
			os.Setenv("TERM", "xterm-256color")
		}
		opts.console = newConsole(cmd.ErrOrStderr(), !opts.noColor, opts.level(), opts.silent)
		go opts.console.run()
		return nil
	}

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newDevicesCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newSymbolsCmd(opts))
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	opts := &options{}
	err := NewRootCmd(opts).ExecuteContext(ctx)
	cancel()

	// closing logger can be safely invoked only when all internally running goroutines (that may emit logs) are done
	if opts.console != nil {
		close(logger.Messages)
		opts.console.wait()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
