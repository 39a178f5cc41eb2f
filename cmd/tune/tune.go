// Package tune implements the tune subcommand: power limits, fixed
// frequencies, PSM margins, PBO scalar, and overclock mode, applied through
// the SMU mailbox.
package tune

// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Kagashini/ZenStates-Core/internal/common"
	"github.com/Kagashini/ZenStates-Core/internal/smu"
	"github.com/Kagashini/ZenStates-Core/internal/topology"
	"github.com/Kagashini/ZenStates-Core/internal/util"
	"github.com/Kagashini/ZenStates-Core/internal/zen"
)

const cmdName = "tune"

var examples = []string{
	fmt.Sprintf("  Set package power limit to 142 W:       $ %s %s --ppt 142000", common.AppName, cmdName),
	fmt.Sprintf("  Fix all cores at 4500 MHz (OC mode):    $ %s %s --oc on --frequency 4500", common.AppName, cmdName),
	fmt.Sprintf("  Fix cores 0-3 and 8 at 4650 MHz:        $ %s %s --frequency 4650 --cores 0-3,8", common.AppName, cmdName),
	fmt.Sprintf("  Undervolt every core by 15 counts:      $ %s %s --psm-margin -15", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Apply power, frequency, and margin settings",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	GroupID:       "primary",
	SilenceErrors: true,
}

var (
	flagPPT       uint32
	flagTDC       uint32
	flagEDC       uint32
	flagHTC       uint32
	flagOcMode    string
	flagFrequency uint32
	flagCores     string
	flagCcd       int
	flagCcx       int
	flagPsmMargin int32
	flagPboScalar float64
)

const (
	flagPPTName       = "ppt"
	flagTDCName       = "tdc"
	flagEDCName       = "edc"
	flagHTCName       = "htc"
	flagOcModeName    = "oc"
	flagFrequencyName = "frequency"
	flagCoresName     = "cores"
	flagCcdName       = "ccd"
	flagCcxName       = "ccx"
	flagPsmMarginName = "psm-margin"
	flagPboScalarName = "pbo-scalar"
)

func init() {
	Cmd.Flags().Uint32Var(&flagPPT, flagPPTName, 0, "package power tracking limit in milliwatts")
	Cmd.Flags().Uint32Var(&flagTDC, flagTDCName, 0, "sustained current limit in milliamps")
	Cmd.Flags().Uint32Var(&flagEDC, flagEDCName, 0, "peak current limit in milliamps")
	Cmd.Flags().Uint32Var(&flagHTC, flagHTCName, 0, "thermal throttle limit in degrees Celsius")
	Cmd.Flags().StringVar(&flagOcMode, flagOcModeName, "", "switch overclock mode, on or off")
	Cmd.Flags().Uint32Var(&flagFrequency, flagFrequencyName, 0, "fixed core frequency in MHz, requires OC mode")
	Cmd.Flags().StringVar(&flagCores, flagCoresName, "", "physical core list for frequency/margin, e.g. 0-3,8")
	Cmd.Flags().IntVar(&flagCcd, flagCcdName, -1, "restrict frequency to one CCD")
	Cmd.Flags().IntVar(&flagCcx, flagCcxName, -1, "restrict frequency to one CCX within --ccd")
	Cmd.Flags().Int32Var(&flagPsmMargin, flagPsmMarginName, 0, "PSM guardband margin in firmware counts, negative undervolts")
	Cmd.Flags().Float64Var(&flagPboScalar, flagPboScalarName, 0, "precision boost overdrive scalar, 1.0 to 10.0")
}

func runCmd(cmd *cobra.Command, args []string) error {
	if err := validateFlags(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	cmd.SilenceUsage = true
	slog.Info("applying tuning request", slog.String("flags", strings.Join(changedFlags(cmd.Flags()), ",")))
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

	if controller.Smu() == nil {
		err := fmt.Errorf("no SMU support for %s", controller.Identity().Codename)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	if err := checkSupport(cmd, controller); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	if err := apply(cmd, controller); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func changedFlags(flags *pflag.FlagSet) []string {
	var names []string
	flags.Visit(func(f *pflag.Flag) {
		names = append(names, f.Name)
	})
	return names
}

func validateFlags(cmd *cobra.Command) error {
	actionFlags := []string{flagPPTName, flagTDCName, flagEDCName, flagHTCName,
		flagOcModeName, flagFrequencyName, flagPsmMarginName, flagPboScalarName}
	anySet := false
	for _, name := range actionFlags {
		if cmd.Flags().Changed(name) {
			anySet = true
			break
		}
	}
	if !anySet {
		return fmt.Errorf("nothing to do, set at least one of --%s", strings.Join(actionFlags, ", --"))
	}
	if flagOcMode != "" && flagOcMode != "on" && flagOcMode != "off" {
		return fmt.Errorf("--%s must be on or off", flagOcModeName)
	}
	if cmd.Flags().Changed(flagCcxName) && !cmd.Flags().Changed(flagCcdName) {
		return fmt.Errorf("--%s requires --%s", flagCcxName, flagCcdName)
	}
	if flagCores != "" && cmd.Flags().Changed(flagCcdName) {
		return fmt.Errorf("--%s and --%s are mutually exclusive", flagCoresName, flagCcdName)
	}
	if flagPboScalar != 0 && (flagPboScalar < 1.0 || flagPboScalar > 10.0) {
		return fmt.Errorf("--%s must be between 1.0 and 10.0", flagPboScalarName)
	}
	return nil
}

// checkSupport rejects the whole invocation before touching the hardware if
// the endpoint's firmware lacks any requested command.
func checkSupport(cmd *cobra.Command, controller *zen.Controller) error {
	requested := mapset.NewSet[smu.Op]()
	if cmd.Flags().Changed(flagPPTName) {
		requested.Add(smu.OpSetPPTLimit)
	}
	if cmd.Flags().Changed(flagTDCName) {
		requested.Add(smu.OpSetTDCLimit)
	}
	if cmd.Flags().Changed(flagEDCName) {
		requested.Add(smu.OpSetEDCLimit)
	}
	if cmd.Flags().Changed(flagHTCName) {
		requested.Add(smu.OpSetHTCLimit)
	}
	switch flagOcMode {
	case "on":
		requested.Add(smu.OpEnableOcMode)
	case "off":
		requested.Add(smu.OpDisableOcMode)
	}
	if cmd.Flags().Changed(flagFrequencyName) {
		if flagCores != "" || cmd.Flags().Changed(flagCcdName) {
			requested.Add(smu.OpSetFrequencyPerCore)
		} else {
			requested.Add(smu.OpSetFrequencyAllCores)
		}
	}
	if cmd.Flags().Changed(flagPsmMarginName) {
		if flagCores != "" {
			requested.Add(smu.OpSetPsmMargin)
		} else {
			requested.Add(smu.OpSetPsmMarginAllCores)
		}
	}
	if cmd.Flags().Changed(flagPboScalarName) {
		requested.Add(smu.OpSetPBOScalar)
	}

	unsupported := requested.Difference(controller.Smu().Endpoint().SupportedOps())
	if unsupported.Cardinality() > 0 {
		names := make([]string, 0, unsupported.Cardinality())
		for op := range unsupported.Iter() {
			names = append(names, string(op))
		}
		sort.Strings(names)
		return fmt.Errorf("not supported by %s firmware: %s",
			controller.Identity().Codename, strings.Join(names, ", "))
	}
	return nil
}

func apply(cmd *cobra.Command, controller *zen.Controller) error {
	// OC mode first so frequency writes land in the right control regime.
	switch flagOcMode {
	case "on":
		if err := controller.SetOcMode(true); err != nil {
			return err
		}
		fmt.Println("OC mode enabled")
	case "off":
		if err := controller.SetOcMode(false); err != nil {
			return err
		}
		fmt.Println("OC mode disabled")
	}
	limits := []struct {
		name string
		set  func(uint32) error
		val  uint32
		unit string
	}{
		{flagPPTName, controller.SetPPTLimit, flagPPT, "mW"},
		{flagTDCName, controller.SetTDCLimit, flagTDC, "mA"},
		{flagEDCName, controller.SetEDCLimit, flagEDC, "mA"},
		{flagHTCName, controller.SetHTCLimit, flagHTC, "C"},
	}
	for _, limit := range limits {
		if !cmd.Flags().Changed(limit.name) {
			continue
		}
		if err := limit.set(limit.val); err != nil {
			return fmt.Errorf("failed to set %s limit: %w", limit.name, err)
		}
		fmt.Printf("%s limit set to %d %s\n", strings.ToUpper(limit.name), limit.val, limit.unit)
	}
	if cmd.Flags().Changed(flagFrequencyName) {
		if err := applyFrequency(cmd, controller); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed(flagPboScalarName) {
		if err := controller.SetPBOScalar(flagPboScalar); err != nil {
			return fmt.Errorf("failed to set PBO scalar: %w", err)
		}
		fmt.Printf("PBO scalar set to %.2f\n", flagPboScalar)
	}
	if cmd.Flags().Changed(flagPsmMarginName) {
		if err := applyPsmMargin(controller); err != nil {
			return err
		}
	}
	return nil
}

func applyFrequency(cmd *cobra.Command, controller *zen.Controller) error {
	switch {
	case flagCores != "":
		cores, err := util.SelectiveIntRangeToIntList(flagCores)
		if err != nil {
			return err
		}
		for _, idx := range cores {
			core, ccd, ccx, err := coreCoordinates(controller, idx)
			if err != nil {
				return err
			}
			if err := controller.SetFrequencySingleCore(core, ccd, ccx, flagFrequency); err != nil {
				return fmt.Errorf("failed to set frequency on core %d: %w", idx, err)
			}
		}
		fmt.Printf("Cores %s fixed at %d MHz\n", flagCores, flagFrequency)
	case cmd.Flags().Changed(flagCcxName):
		if err := controller.SetFrequencyCcx(flagCcd, flagCcx, flagFrequency); err != nil {
			return fmt.Errorf("failed to set CCX frequency: %w", err)
		}
		fmt.Printf("CCD %d CCX %d fixed at %d MHz\n", flagCcd, flagCcx, flagFrequency)
	case cmd.Flags().Changed(flagCcdName):
		if err := controller.SetFrequencyCcd(flagCcd, flagFrequency); err != nil {
			return fmt.Errorf("failed to set CCD frequency: %w", err)
		}
		fmt.Printf("CCD %d fixed at %d MHz\n", flagCcd, flagFrequency)
	default:
		if err := controller.SetFrequencyAllCores(flagFrequency); err != nil {
			return fmt.Errorf("failed to set all-core frequency: %w", err)
		}
		fmt.Printf("All cores fixed at %d MHz\n", flagFrequency)
	}
	return nil
}

func applyPsmMargin(controller *zen.Controller) error {
	if flagCores == "" {
		if err := controller.SetPsmMarginAllCores(flagPsmMargin); err != nil {
			return fmt.Errorf("failed to set PSM margin: %w", err)
		}
		fmt.Printf("PSM margin set to %d on all cores\n", flagPsmMargin)
		return nil
	}
	cores, err := util.SelectiveIntRangeToIntList(flagCores)
	if err != nil {
		return err
	}
	for _, idx := range cores {
		core, ccd, ccx, err := coreCoordinates(controller, idx)
		if err != nil {
			return err
		}
		if err := controller.SetPsmMargin(core, ccd, ccx, flagPsmMargin); err != nil {
			return fmt.Errorf("failed to set PSM margin on core %d: %w", idx, err)
		}
	}
	fmt.Printf("PSM margin set to %d on cores %s\n", flagPsmMargin, flagCores)
	return nil
}

// coreCoordinates maps a flat physical core index to the (core, ccd, ccx)
// selector the firmware addresses cores by.
func coreCoordinates(controller *zen.Controller, index int) (core, ccd, ccx int, err error) {
	topo := controller.Topology()
	if topo.CoresPerCcx == 0 {
		return 0, 0, 0, fmt.Errorf("core topology unavailable, cannot address core %d", index)
	}
	if index < 0 || index >= topo.PhysicalCores {
		return 0, 0, 0, fmt.Errorf("core %d out of range, %d physical cores", index, topo.PhysicalCores)
	}
	ccxPerCcd := topology.CcxPerCcd(controller.Identity().Family)
	core = index % topo.CoresPerCcx
	ccx = index / topo.CoresPerCcx % ccxPerCcd
	ccd = index / (topo.CoresPerCcx * ccxPerCcd)
	return core, ccd, ccx, nil
}
