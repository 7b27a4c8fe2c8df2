// Package main runs the scripted behavior scenarios against a real engine.
// Exits non-zero when any scenario fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dewwy/petbot/internal/platform/logger"
	"github.com/dewwy/petbot/internal/scenario"
)

func main() {
	only := flag.String("run", "", "comma separated scenario names (default: all)")
	verbose := flag.Bool("v", false, "log engine activity")
	list := flag.Bool("list", false, "list scenarios and exit")
	flag.Parse()

	if *list {
		for _, sc := range scenario.Builtin() {
			fmt.Printf("%-20s %s\n", sc.Name, sc.Description)
		}
		return
	}

	log := logger.NewNop()
	if *verbose {
		var err error
		if log, err = logger.New("debug", true); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		defer log.Sync()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	selected := selectScenarios(*only)
	if len(selected) == 0 {
		fmt.Fprintf(os.Stderr, "no scenario matches %q\n", *only)
		os.Exit(2)
	}

	fmt.Println("PETBOT - BEHAVIOR SCENARIOS")
	fmt.Println(strings.Repeat("=", 60))

	h := scenario.NewHarness(log)
	passed, failed := 0, 0
	for _, sc := range selected {
		res := h.Run(ctx, sc)
		if res.Passed {
			passed++
			fmt.Printf("PASS  %-20s %3d ticks\n", res.Name, res.Ticks)
			continue
		}
		failed++
		fmt.Printf("FAIL  %-20s %s\n", res.Name, res.Reason)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("passed: %d  failed: %d\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func selectScenarios(names string) []scenario.Scenario {
	all := scenario.Builtin()
	if names == "" {
		return all
	}
	want := make(map[string]bool)
	for _, n := range strings.Split(names, ",") {
		want[strings.TrimSpace(n)] = true
	}
	var out []scenario.Scenario
	for _, sc := range all {
		if want[sc.Name] {
			out = append(out, sc)
		}
	}
	return out
}
