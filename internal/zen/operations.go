// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package zen

import (
	"errors"
	"fmt"

	"github.com/Kagashini/ZenStates-Core/internal/pmtable"
	"github.com/Kagashini/ZenStates-Core/internal/smu"
	"github.com/Kagashini/ZenStates-Core/internal/topology"
	"github.com/Kagashini/ZenStates-Core/internal/uarch"
)

// Identity returns the resolved silicon identity.
func (c *Controller) Identity() Identity { return c.identity }

// Topology returns the decoded core topology. Callers must check Status
// before relying on the fuse-derived fields.
func (c *Controller) Topology() topology.Topology { return c.topo }

// Status reports whether every initialization phase completed.
func (c *Controller) Status() Status { return c.status }

// LastError returns the error retained from the most recent degraded
// initialization phase, or nil.
func (c *Controller) LastError() error { return c.lastError }

// SmuVersion returns the SMU firmware version, zero if the SMU is not
// configured.
func (c *Controller) SmuVersion() smu.Version { return c.smuVersion }

// TableVersion returns the power-table schema version.
func (c *Controller) TableVersion() uint32 { return c.tableVersion }

// PatchLevel returns the installed microcode revision.
func (c *Controller) PatchLevel() uint32 { return c.patchLevel }

// SviAddresses returns the SVI2 telemetry addresses for the core and SoC
// rails. Best-effort for unsupported identities.
func (c *Controller) SviAddresses() uarch.SviAddressPair { return c.svi }

// Smu returns the mailbox client, or nil when no endpoint configuration
// exists for this processor.
func (c *Controller) Smu() *smu.Client { return c.client }

// PowerTable returns the telemetry table descriptor, or nil when the SMU is
// not configured.
func (c *Controller) PowerTable() *pmtable.Table { return c.table }

// Close releases the register-access bridge.
func (c *Controller) Close() error { return c.io.Close() }

// MakeCoreMask packs a core selector for per-core SMU commands using this
// processor's family encoding.
func (c *Controller) MakeCoreMask(core, ccd, ccx int) uint32 {
	return topology.MakeCoreMask(c.identity.Family, core, ccd, ccx)
}

// ReadMsr reads a model-specific register on logical processor 0.
func (c *Controller) ReadMsr(index uint32) (uint32, uint32, error) {
	return c.io.ReadMsr(index)
}

// ReadMsrOnCore reads a model-specific register on one logical processor.
func (c *Controller) ReadMsrOnCore(index uint32, core int) (uint32, uint32, error) {
	return c.io.ReadMsrOnCore(index, core)
}

// WriteMsrOnCore writes a model-specific register on one logical processor.
func (c *Controller) WriteMsrOnCore(index, eax, edx uint32, core int) error {
	return c.io.WriteMsrOnCore(index, eax, edx, core)
}

// WriteMsrAllCores writes the same model-specific register on every logical
// processor. The write is best-effort across cores: a per-core failure does
// not stop the iteration, and the returned error names every core that
// failed.
func (c *Controller) WriteMsrAllCores(index, eax, edx uint32) error {
	var errs []error
	for core := 0; core < c.topo.LogicalCores; core++ {
		if err := c.io.WriteMsrOnCore(index, eax, edx, core); err != nil {
			errs = append(errs, fmt.Errorf("core %d: %w", core, err))
		}
	}
	return errors.Join(errs...)
}

// ReadPciConfig reads a dword from PCI configuration space.
func (c *Controller) ReadPciConfig(pciAddress, register uint32) (uint32, error) {
	return c.io.ReadPciConfig(pciAddress, register)
}

// WritePciConfig writes a dword to PCI configuration space.
func (c *Controller) WritePciConfig(pciAddress, register, value uint32) error {
	return c.io.WritePciConfig(pciAddress, register, value)
}

// RefreshPowerTable re-runs the telemetry table transfer and decode. The
// previous snapshot survives any failure.
func (c *Controller) RefreshPowerTable() error {
	if c.client == nil || c.table == nil {
		return ErrSmuNotConfigured
	}
	return c.table.Refresh(c.client, c.io)
}

// SviTelemetry reads the raw SVI2 telemetry dwords for the core and SoC
// rails.
func (c *Controller) SviTelemetry() (core, soc uint32, err error) {
	if c.client == nil {
		return 0, 0, ErrSmuNotConfigured
	}
	if core, err = c.client.ReadDword(c.svi.Core); err != nil {
		return 0, 0, err
	}
	if soc, err = c.client.ReadDword(c.svi.Soc); err != nil {
		return 0, 0, err
	}
	return core, soc, nil
}

// Prochot reports whether the package PROCHOT signal is asserted.
func (c *Controller) Prochot() (bool, error) {
	if c.client == nil {
		return false, ErrSmuNotConfigured
	}
	v, err := c.client.ReadDword(thmProchotStatus)
	if err != nil {
		return false, err
	}
	return v&1 != 0, nil
}

// TestSmu sends the mailbox handshake command.
func (c *Controller) TestSmu() error {
	if c.client == nil {
		return ErrSmuNotConfigured
	}
	res, err := c.client.TestMessage()
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("SMU test message rejected: %s", res.Status)
	}
	return nil
}

// smuCall guards the SMU-backed setters behind endpoint configuration and
// folds non-success statuses into errors for callers that only need a
// verdict.
func (c *Controller) smuCall(f func(*smu.Client) (smu.Result, error)) error {
	if c.client == nil {
		return ErrSmuNotConfigured
	}
	res, err := f(c.client)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("SMU rejected command: %s", res.Status)
	}
	return nil
}

// SetPPTLimit sets the package power tracking limit in milliwatts.
func (c *Controller) SetPPTLimit(milliwatts uint32) error {
	return c.smuCall(func(s *smu.Client) (smu.Result, error) { return s.SetPPTLimit(milliwatts) })
}

// SetTDCLimit sets the sustained core-rail current limit in milliamps.
func (c *Controller) SetTDCLimit(milliamps uint32) error {
	return c.smuCall(func(s *smu.Client) (smu.Result, error) { return s.SetTDCLimit(milliamps) })
}

// SetEDCLimit sets the peak core-rail current limit in milliamps.
func (c *Controller) SetEDCLimit(milliamps uint32) error {
	return c.smuCall(func(s *smu.Client) (smu.Result, error) { return s.SetEDCLimit(milliamps) })
}

// SetHTCLimit sets the thermal throttle limit in degrees Celsius.
func (c *Controller) SetHTCLimit(degrees uint32) error {
	return c.smuCall(func(s *smu.Client) (smu.Result, error) { return s.SetHTCLimit(degrees) })
}

// SetOcMode switches manual overclock mode on or off.
func (c *Controller) SetOcMode(enabled bool) error {
	return c.smuCall(func(s *smu.Client) (smu.Result, error) {
		if enabled {
			return s.EnableOcMode()
		}
		return s.DisableOcMode()
	})
}

// OcMode reports whether manual overclock mode is active. APU parts carry
// the flag in an MSR; desktop and server parts signal it through a zero PBO
// scalar.
func (c *Controller) OcMode() (bool, error) {
	if uarch.IsAPU(c.identity.Codename) {
		eax, _, err := c.io.ReadMsr(msrOcModeStatus)
		if err != nil {
			return false, err
		}
		return eax>>1&1 != 0, nil
	}
	scalar, err := c.GetPBOScalar()
	if err != nil {
		return false, err
	}
	return scalar == 0, nil
}

// CoreMultiplier reads the effective frequency multiplier of one logical
// processor from its P-state status register.
func (c *Controller) CoreMultiplier(core int) (float64, error) {
	eax, _, err := c.io.ReadMsrOnCore(msrPstateStat, core)
	if err != nil {
		return 0, err
	}
	fid := float64(eax & 0xff)
	did := float64(eax >> 8 & 0x3f)
	if did == 0 {
		return 0, fmt.Errorf("p-state status on core %d has a zero divisor field", core)
	}
	return 25 * fid / (12.5 * did), nil
}

// SetFrequencyAllCores sets a fixed frequency in MHz on every core.
func (c *Controller) SetFrequencyAllCores(mhz uint32) error {
	return c.smuCall(func(s *smu.Client) (smu.Result, error) { return s.SetFrequencyAllCores(mhz) })
}

// SetFrequencySingleCore sets a fixed frequency in MHz on one core.
func (c *Controller) SetFrequencySingleCore(core, ccd, ccx int, mhz uint32) error {
	mask := c.MakeCoreMask(core, ccd, ccx)
	return c.smuCall(func(s *smu.Client) (smu.Result, error) { return s.SetFrequencyPerCore(mask, mhz) })
}

// SetFrequencyCcx sets a fixed frequency in MHz on every core of one CCX.
// The core field of the selector is ignored by firmware for CCX-scoped
// writes.
func (c *Controller) SetFrequencyCcx(ccd, ccx int, mhz uint32) error {
	mask := c.MakeCoreMask(0, ccd, ccx)
	return c.smuCall(func(s *smu.Client) (smu.Result, error) { return s.SetFrequencyPerCore(mask, mhz) })
}

// SetFrequencyCcd sets a fixed frequency in MHz on every CCX of one CCD.
func (c *Controller) SetFrequencyCcd(ccd int, mhz uint32) error {
	for ccx := 0; ccx < topology.CcxPerCcd(c.identity.Family); ccx++ {
		if err := c.SetFrequencyCcx(ccd, ccx, mhz); err != nil {
			return err
		}
	}
	return nil
}

// GetPBOScalar reads the Precision Boost Overdrive scalar.
func (c *Controller) GetPBOScalar() (float64, error) {
	if c.client == nil {
		return 0, ErrSmuNotConfigured
	}
	return c.client.GetPBOScalar()
}

// SetPBOScalar programs the Precision Boost Overdrive scalar.
func (c *Controller) SetPBOScalar(scalar float64) error {
	return c.smuCall(func(s *smu.Client) (smu.Result, error) { return s.SetPBOScalar(scalar) })
}

// GetPsmMargin reads the PSM guardband margin of one core.
func (c *Controller) GetPsmMargin(core, ccd, ccx int) (int32, error) {
	if c.client == nil {
		return 0, ErrSmuNotConfigured
	}
	return c.client.GetPsmMargin(c.MakeCoreMask(core, ccd, ccx))
}

// SetPsmMargin programs the PSM guardband margin of one core.
func (c *Controller) SetPsmMargin(core, ccd, ccx int, margin int32) error {
	mask := c.MakeCoreMask(core, ccd, ccx)
	return c.smuCall(func(s *smu.Client) (smu.Result, error) { return s.SetPsmMargin(mask, margin) })
}

// SetPsmMarginAllCores programs the same PSM guardband margin on every
// core.
func (c *Controller) SetPsmMarginAllCores(margin int32) error {
	return c.smuCall(func(s *smu.Client) (smu.Result, error) { return s.SetPsmMarginAllCores(margin) })
}
