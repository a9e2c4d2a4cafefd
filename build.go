//go:build ignore

// Cross-compiles keymapperd for supported linux platforms, run with "go run build.go"
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

var availableTargets = []target{
	{goos: "linux", goarch: "arm", goarm: "6"},
	{goos: "linux", goarch: "arm", goarm: "7"},
	{goos: "linux", goarch: "arm64"}, // ARMv8,
	{goos: "linux", goarch: "386"},
	{goos: "linux", goarch: "amd64"},
}

type target struct {
	goos   string
	goarch string
	goarm  string
}

func (t target) String() string {
	if t.goarm != "" {
		return fmt.Sprintf("%s-%s-v%s", t.goos, t.goarch, t.goarm)
	}
	return fmt.Sprintf("%s-%s", t.goos, t.goarch)
}

func (t target) env() []string {
	env := []string{
		fmt.Sprintf("GOOS=%s", t.goos),
		fmt.Sprintf("GOARCH=%s", t.goarch),
	}
	if t.goarm != "" {
		env = append(env, fmt.Sprintf("GOARM=%s", t.goarm))
	}
	if cgo {
		return append(env, "CGO_ENABLED=1")
	}
	return append(env, "CGO_ENABLED=0")
}

type buildError struct {
	target         target
	stdout, stderr string
}

func (e *buildError) Error() string {
	return fmt.Sprintf("building %s for %s failed", project, e.target)
}

func build(t target) error {
	params := []string{"build", "-trimpath", "-o", fmt.Sprintf("./builds/%s-%s", basename, t)}
	if tags != "" {
		params = append(params, "-tags", tags)
	}
	if strip {
		params = append(params, "-ldflags", "-s -w")
	}
	if race {
		params = append(params, "-race")
	}
	params = append(params, project)

	cmd := exec.Command("go", params...)
	cmd.Env = append(os.Environ(), t.env()...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &buildError{target: t, stdout: stdout.String(), stderr: stderr.String()}
	}
	return nil
}

func selectTargets(selection string) ([]target, error) {
	if selection == "all" {
		return availableTargets, nil
	}
	var selected []target
	for _, rt := range strings.Split(selection, ",") {
		found := false
		for _, t := range availableTargets {
			if t.String() == rt {
				selected = append(selected, t)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("target not found: %s", rt)
		}
	}
	return selected, nil
}

var selection, project, basename, tags string
var cgo, race, strip bool

func init() {
	var targets []string
	for _, t := range availableTargets {
		targets = append(targets, t.String())
	}
	flag.StringVar(&selection, "platforms", "all", fmt.Sprintf(
		"comma-separated target platform list\navailable: %s", strings.Join(targets, ",")),
	)
	flag.StringVar(&project, "project", "./cmd/keymapperd/", "choose project directory")
	flag.StringVar(&basename, "base", "keymapperd", "base filename for output binaries")
	flag.StringVar(&tags, "tags", "", "comma-separated build tags")
	flag.BoolVar(&cgo, "cgo", false, "cgo")
	flag.BoolVar(&race, "race", false, "include race detector")
	flag.BoolVar(&strip, "strip", false, "strip debug information")
	flag.Parse()
}

func main() {
	log.SetFlags(log.Ltime)

	selected, err := selectTargets(selection)
	if err != nil {
		log.Print(err)
		os.Exit(1)
	}

	var names []string
	for _, t := range selected {
		names = append(names, t.String())
	}
	log.Printf("selected targets: %s", strings.Join(names, ", "))

	var (
		mu     sync.Mutex
		failed []*buildError
		g      errgroup.Group
	)

	log.Printf("engaging parallel building for %d targets\n", len(selected))
	for _, t := range selected {
		t := t
		g.Go(func() error {
			log.Printf("building target %s          %s", project, t)
			err := build(t)
			if err != nil {
				log.Printf("building target %s failed:  %s", project, t)
				mu.Lock()
				failed = append(failed, err.(*buildError))
				mu.Unlock()
				return err
			}
			log.Printf("building target %s success: %s", project, t)
			return nil
		})
	}

	if g.Wait() == nil {
		os.Exit(0)
	}

	for _, e := range failed {
		fmt.Printf("\n>>> Failed build: project: %s, base: %s, target: %s\n", project, basename, e.target)
		if e.stdout != "" {
			fmt.Printf("======== STDOUT ========\n%s========================\n", e.stdout)
		}
		if e.stderr != "" {
			fmt.Printf("======== STDERR ========\n%s========================\n", e.stderr)
		}
	}
	os.Exit(1)
}
