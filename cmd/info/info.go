// Package info implements the info subcommand. It reports processor
// identity, core topology, firmware versions, and telemetry register
// placement for the local processor.
package info

// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Kagashini/ZenStates-Core/internal/common"
	"github.com/Kagashini/ZenStates-Core/internal/zen"
)

const cmdName = "info"

var examples = []string{
	fmt.Sprintf("  Show identity and topology:          $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Machine-readable output:             $ %s %s --format json", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Show processor identity, topology, and firmware details",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	GroupID:       "primary",
	SilenceErrors: true,
}

var (
	flagFormat string
)

const (
	flagFormatName = "format"

	formatText = "txt"
	formatJSON = "json"
)

func init() {
	Cmd.Flags().StringVar(&flagFormat, flagFormatName, formatText, "output format, txt or json")
}

// report is the flattened view of the controller state for output.
type report struct {
	Codename       string `json:"codename"`
	BrandString    string `json:"brand_string"`
	Family         string `json:"family"`
	Model          string `json:"model"`
	PackageType    string `json:"package_type"`
	Status         string `json:"status"`
	SmuVersion     string `json:"smu_version"`
	TableVersion   string `json:"table_version"`
	PatchLevel     string `json:"patch_level"`
	LogicalCores   int    `json:"logical_cores"`
	Cores          int    `json:"cores"`
	PhysicalCores  int    `json:"physical_cores"`
	Ccds           int    `json:"ccds"`
	Ccxs           int    `json:"ccxs"`
	CoresPerCcx    int    `json:"cores_per_ccx"`
	CoreDisableMap string `json:"core_disable_map"`
	SviCoreAddress string `json:"svi_core_address"`
	SviSocAddress  string `json:"svi_soc_address"`
	Prochot        string `json:"prochot"`
}

func runCmd(cmd *cobra.Command, args []string) error {
	if flagFormat != formatText && flagFormat != formatJSON {
		return fmt.Errorf("unsupported format: %s", flagFormat)
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

	r := buildReport(controller)
	if flagFormat == formatJSON {
		out, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	printText(r)
	return nil
}

func buildReport(controller *zen.Controller) report {
	id := controller.Identity()
	topo := controller.Topology()
	r := report{
		Codename:       id.Codename,
		BrandString:    id.BrandString,
		Family:         fmt.Sprintf("0x%X", id.Family),
		Model:          fmt.Sprintf("0x%X", id.Model),
		PackageType:    id.PackageType.String(),
		Status:         controller.Status().String(),
		SmuVersion:     controller.SmuVersion().String(),
		TableVersion:   fmt.Sprintf("0x%X", controller.TableVersion()),
		PatchLevel:     fmt.Sprintf("0x%X", controller.PatchLevel()),
		LogicalCores:   topo.LogicalCores,
		Cores:          topo.Cores,
		PhysicalCores:  topo.PhysicalCores,
		Ccds:           topo.Ccds,
		Ccxs:           topo.Ccxs,
		CoresPerCcx:    topo.CoresPerCcx,
		CoreDisableMap: fmt.Sprintf("0x%X", topo.CoreDisableMap),
		SviCoreAddress: fmt.Sprintf("0x%X", controller.SviAddresses().Core),
		SviSocAddress:  fmt.Sprintf("0x%X", controller.SviAddresses().Soc),
	}
	if prochot, err := controller.Prochot(); err == nil {
		if prochot {
			r.Prochot = "asserted"
		} else {
			r.Prochot = "clear"
		}
	} else {
		r.Prochot = "unavailable"
	}
	return r
}

func printText(r report) {
	rows := [][2]string{
		{"Code name", r.Codename},
		{"Brand string", r.BrandString},
		{"Family / Model", r.Family + " / " + r.Model},
		{"Package", r.PackageType},
		{"Status", r.Status},
		{"SMU firmware version", r.SmuVersion},
		{"Power table version", r.TableVersion},
		{"Microcode patch level", r.PatchLevel},
		{"Logical cores", fmt.Sprintf("%d", r.LogicalCores)},
		{"Cores (SMT-adjusted)", fmt.Sprintf("%d", r.Cores)},
		{"Physical cores (fused)", fmt.Sprintf("%d", r.PhysicalCores)},
		{"CCDs / CCXs / cores per CCX", fmt.Sprintf("%d / %d / %d", r.Ccds, r.Ccxs, r.CoresPerCcx)},
		{"Core disable map", r.CoreDisableMap},
		{"SVI2 core / SoC address", r.SviCoreAddress + " / " + r.SviSocAddress},
		{"PROCHOT", r.Prochot},
	}
	// A heading separator only makes sense on an interactive terminal.
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println("Processor Information")
		fmt.Println(strings.Repeat("=", len("Processor Information")))
	}
	for _, row := range rows {
		fmt.Printf("%-28s %s\n", row[0]+":", row[1])
	}
}
