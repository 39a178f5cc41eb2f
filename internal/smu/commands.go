// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package smu

import (
	"fmt"
)

// Version is a packed SMU firmware or table version dword, formatted as the
// dotted form firmware tooling reports.
type Version uint32

func (v Version) String() string {
	if b := v >> 24 & 0xff; b != 0 {
		return fmt.Sprintf("%d.%d.%d.%d", b, v>>16&0xff, v>>8&0xff, v&0xff)
	}
	return fmt.Sprintf("%d.%d.%d", v>>16&0xff, v>>8&0xff, v&0xff)
}

// MajorByte returns the high populated byte of the version, used for the
// Picasso firmware tie-break.
func (v Version) MajorByte() uint32 {
	if b := uint32(v) >> 24 & 0xff; b != 0 {
		return b
	}
	return uint32(v) >> 16 & 0xff
}

// TestMessage sends the no-op handshake command. A reachable SMU echoes
// success; anything else means the mailbox is not serviceable.
func (c *Client) TestMessage() (Result, error) {
	return c.SendCommand(OpTestMessage, Args{1})
}

// GetSmuVersion queries the firmware version.
func (c *Client) GetSmuVersion() (Version, error) {
	res, err := c.SendCommand(OpGetSmuVersion, Args{1})
	if err != nil {
		return 0, err
	}
	if !res.OK() {
		return 0, fmt.Errorf("SMU version query failed: %s", res.Status)
	}
	return Version(res.Args[0]), nil
}

// GetTableVersion queries the power-table schema version the firmware
// serves.
func (c *Client) GetTableVersion() (uint32, error) {
	res, err := c.SendCommand(OpGetTableVersion, Args{})
	if err != nil {
		return 0, err
	}
	if !res.OK() {
		return 0, fmt.Errorf("table version query failed: %s", res.Status)
	}
	return res.Args[0], nil
}

// TransferTableToDram asks the firmware to copy the power table into the
// DRAM window. The returned status is the SMU's verdict; callers abort a
// table refresh on anything but success.
func (c *Client) TransferTableToDram() (Result, error) {
	return c.SendCommand(OpTransferTableToDram, Args{c.ep.TransferArg})
}

// GetDramBaseAddress resolves the physical base of the DRAM window the
// firmware transfers the power table into. The address spans two result
// words on firmware that can place the window above 4 GiB.
func (c *Client) GetDramBaseAddress() (uint64, error) {
	res, err := c.SendCommand(OpGetDramBaseAddress, Args{})
	if err != nil {
		return 0, err
	}
	if !res.OK() {
		return 0, fmt.Errorf("DRAM base address query failed: %s", res.Status)
	}
	return uint64(res.Args[1])<<32 | uint64(res.Args[0]), nil
}

// SetPPTLimit sets the package power tracking limit in milliwatts.
func (c *Client) SetPPTLimit(milliwatts uint32) (Result, error) {
	return c.SendCommand(OpSetPPTLimit, Args{milliwatts})
}

// SetTDCLimit sets the sustained current limit on the core rail in
// milliamps.
func (c *Client) SetTDCLimit(milliamps uint32) (Result, error) {
	return c.SendCommand(OpSetTDCLimit, Args{milliamps})
}

// SetEDCLimit sets the peak current limit on the core rail in milliamps.
func (c *Client) SetEDCLimit(milliamps uint32) (Result, error) {
	return c.SendCommand(OpSetEDCLimit, Args{milliamps})
}

// SetHTCLimit sets the thermal throttle limit in degrees Celsius.
func (c *Client) SetHTCLimit(degrees uint32) (Result, error) {
	return c.SendCommand(OpSetHTCLimit, Args{degrees})
}

// EnableOcMode switches the firmware into manual overclock mode.
func (c *Client) EnableOcMode() (Result, error) {
	return c.SendCommand(OpEnableOcMode, Args{})
}

// DisableOcMode returns the firmware to automatic boost control. This is a
// distinct firmware command from EnableOcMode; endpoints whose firmware has
// no disable command report ErrUnsupportedOp.
func (c *Client) DisableOcMode() (Result, error) {
	return c.SendCommand(OpDisableOcMode, Args{})
}

// SetFrequencyAllCores sets a fixed frequency in MHz across all cores.
// Requires OC mode.
func (c *Client) SetFrequencyAllCores(mhz uint32) (Result, error) {
	return c.SendCommand(OpSetFrequencyAllCores, Args{mhz & 0xFFFFF})
}

// SetFrequencyPerCore sets a fixed frequency in MHz for the core addressed
// by the mask (topology.MakeCoreMask encoding in the upper bits).
func (c *Client) SetFrequencyPerCore(coreMask, mhz uint32) (Result, error) {
	return c.SendCommand(OpSetFrequencyPerCore, Args{coreMask&0xFFF00000 | mhz&0xFFFFF})
}

// GetPBOScalar reads the Precision Boost Overdrive scalar. The firmware
// reports a fixed-point ratio scaled by 100.
func (c *Client) GetPBOScalar() (float64, error) {
	res, err := c.SendCommand(OpGetPBOScalar, Args{})
	if err != nil {
		return 0, err
	}
	if !res.OK() {
		return 0, fmt.Errorf("PBO scalar query failed: %s", res.Status)
	}
	return float64(res.Args[0]) / 100, nil
}

// SetPBOScalar programs the Precision Boost Overdrive scalar (1.0 - 10.0).
func (c *Client) SetPBOScalar(scalar float64) (Result, error) {
	return c.SendCommand(OpSetPBOScalar, Args{uint32(scalar * 100)})
}

// GetPsmMargin reads the PSM guardband margin for the core addressed by the
// mask. The margin is a signed count in firmware units.
func (c *Client) GetPsmMargin(coreMask uint32) (int32, error) {
	res, err := c.SendCommand(OpGetPsmMargin, Args{coreMask})
	if err != nil {
		return 0, err
	}
	if !res.OK() {
		return 0, fmt.Errorf("PSM margin query failed: %s", res.Status)
	}
	return int32(res.Args[0]), nil
}

// SetPsmMargin programs the PSM guardband margin for one core. The signed
// margin occupies the low half of the argument word, under the core mask
// bits.
func (c *Client) SetPsmMargin(coreMask uint32, margin int32) (Result, error) {
	return c.SendCommand(OpSetPsmMargin, Args{coreMask&0xFFF00000 | uint32(uint16(margin))})
}

// SetPsmMarginAllCores programs the same PSM guardband margin on every
// core in one firmware command.
func (c *Client) SetPsmMarginAllCores(margin int32) (Result, error) {
	return c.SendCommand(OpSetPsmMarginAllCores, Args{uint32(margin)})
}
