package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gethiox/keymapper/internal/pkg/input"
	"github.com/gethiox/keymapper/internal/pkg/macro"
	"github.com/gethiox/keymapper/internal/pkg/mapping"
	"github.com/gethiox/keymapper/internal/pkg/symbols"
	"github.com/holoplot/go-evdev"
	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
)

func newDevicesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List connected input devices with their event handlers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := input.ListDevices()
			if err != nil {
				return err
			}
			printDevices(cmd.OutOrStdout(), aurora.NewAurora(!opts.noColor), devices)
			return nil
		},
	}
}

const typeColumn = 10

func printDevices(w io.Writer, au aurora.Aurora, devices []input.Device) {
	for _, d := range devices {
		kind := au.Bold(d.DeviceType.String()).String()
		pad := typeColumn - rawStringLen(kind)
		if pad < 1 {
			pad = 1
		}
		fmt.Fprintf(w, "%s%s%s\n", kind, strings.Repeat(" ", pad), colorForString(au, fmt.Sprintf("\"%s\"", d.Name)))
		for _, h := range d.Handlers {
			var types []string
			for _, t := range input.SortedTypes(h.Capabilities()) {
				types = append(types, evdev.TypeName(t))
			}
			fmt.Fprintf(w, "  %s %s\n", au.Index(75, h.EventPath()), au.Reset(strings.Join(types, " ")).Colorize(gray(12)))
		}
	}
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check <mapping file>...",
		Short: "Validate mapping files and print resolved rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := loadRegistry(cmd.Context(), opts.xmodmap)
			au := aurora.NewAurora(!opts.noColor)
			var failed int
			for _, path := range args {
				err := checkMapping(cmd.OutOrStdout(), au, registry, path)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, au.Red(err.Error()))
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d mapping files are invalid", failed, len(args))
			}
			return nil
		},
	}
}

func checkMapping(w io.Writer, au aurora.Aurora, registry *symbols.Registry, path string) error {
	f, err := mapping.ReadFile(path)
	if err != nil {
		return err
	}
	resolved, err := mapping.Resolve(f.Mapping, macro.Options{Registry: registry})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: device %s, %d rules\n", path, colorForString(au, fmt.Sprintf("\"%s\"", f.Device)), len(resolved.Keys))
	for _, key := range f.Mapping.Keys() {
		if err, ok := resolved.Dropped[key]; ok {
			fmt.Fprintf(w, "  %-16s %s\n", key, au.Yellow(fmt.Sprintf("dropped: %s", err)))
			continue
		}
		kind := "remap"
		if _, ok := resolved.Macros[key.Code]; ok {
			kind = "macro"
		}
		fmt.Fprintf(w, "  %-16s %s %s\n", key, au.Reset(kind).Colorize(gray(12)), f.Mapping[key])
	}
	return nil
}

func newSymbolsCmd(opts *options) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "List key symbols usable in mappings and macros",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := loadRegistry(cmd.Context(), opts.xmodmap)
			printSymbols(cmd.OutOrStdout(), registry, filter)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "show only symbols containing given text")
	return cmd
}

func printSymbols(w io.Writer, registry *symbols.Registry, filter string) {
	filter = strings.ToLower(filter)
	names := registry.Names()
	sort.Strings(names)
	for _, name := range names {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		code, _ := registry.Lookup(name)
		fmt.Fprintf(w, "%-24s %d\n", name, code)
	}
}
