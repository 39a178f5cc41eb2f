// Package pm implements the pm subcommand. It refreshes and prints the SMU
// power telemetry table, either once, periodically, or continuously as a
// prometheus exporter.
package pm

// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kagashini/ZenStates-Core/internal/common"
	"github.com/Kagashini/ZenStates-Core/internal/zen"
)

const cmdName = "pm"

var examples = []string{
	fmt.Sprintf("  Dump the power telemetry table once:    $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Sample five times, one second apart:    $ %s %s --count 5 --interval 1s", common.AppName, cmdName),
	fmt.Sprintf("  Run as a prometheus exporter:           $ %s %s --listen :9533", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Read the SMU power telemetry table",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	GroupID:       "primary",
	SilenceErrors: true,
}

var (
	flagInterval time.Duration
	flagCount    int
	flagListen   string
)

const (
	flagIntervalName = "interval"
	flagCountName    = "count"
	flagListenName   = "listen"
)

func init() {
	Cmd.Flags().DurationVar(&flagInterval, flagIntervalName, time.Second, "delay between samples")
	Cmd.Flags().IntVar(&flagCount, flagCountName, 1, "number of samples to print, 0 to run until interrupted")
	Cmd.Flags().StringVar(&flagListen, flagListenName, "", "address to serve prometheus metrics on, e.g. :9533")
}

func runCmd(cmd *cobra.Command, args []string) error {
	if flagCount < 0 {
		return fmt.Errorf("--%s must not be negative", flagCountName)
	}
	cmd.SilenceUsage = true
	appContext := cmd.Parent().Context().Value(common.AppContext{}).(common.AppContext)
	controller, err := common.OpenController(appContext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	defer func() {
		if err := controller.Close(); err != nil {
			slog.Error("error closing controller", slog.String("error", err.Error()))
		}
	}()

	if controller.PowerTable() == nil {
		err := fmt.Errorf("power telemetry table not available on %s", controller.Identity().Codename)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	if flagListen != "" {
		return serveMetrics(controller, flagListen, flagInterval)
	}
	return printSamples(controller, flagCount, flagInterval)
}

func printSamples(controller *zen.Controller, count int, interval time.Duration) error {
	table := controller.PowerTable()
	for sample := 0; count == 0 || sample < count; sample++ {
		if sample > 0 {
			time.Sleep(interval)
		}
		if err := controller.RefreshPowerTable(); err != nil {
			// A stale window is worth retrying on the next sample; anything
			// else ends the run.
			if table.Values() == nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return err
			}
			slog.Warn("power table refresh failed, keeping previous sample", slog.String("error", err.Error()))
		}
		values := table.Values()
		fmt.Printf("# table version 0x%X, %d values, dram base 0x%X\n", table.Version, len(values), table.DramBase)
		for i, v := range values {
			fmt.Printf("%4d: %g\n", i, v)
		}
	}
	return nil
}
