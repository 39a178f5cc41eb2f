// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

// Package topology decodes the physical core layout of Zen-family parts
// from CPUID-derived counts and the CCD/core fuse registers in SMN space.
package topology

import (
	"fmt"
	"math/bits"
)

// Fuse register layout. The base addresses hold for family 17h parts in the
// documented exception set (Matisse, Rome/CastlePeak); other family 17h
// parts shift the two fuse dwords by 0x40, family 19h by 0x70. The per-CCD
// core-disable dwords sit at a family-specific offset from the disable-map
// base, strided by CCD index.
const (
	fusePresentBase = 0x5D218
	fuseDownBase    = 0x5D21C

	coreDisableBase      = 0x30081800
	coreDisableOffsetF17 = 0x238
	coreDisableOffsetF19 = 0x598

	fuseShiftF17 = 0x40
	fuseShiftF19 = 0x70

	ccdStrideShift = 25 // per-CCD register block stride of 0x2000000
)

// family 17h models whose fuse dwords live at the unshifted base addresses
var f17FuseExceptionModels = map[uint32]bool{
	0x31: true, // Rome / CastlePeak
	0x71: true, // Matisse
}

// DwordReader reads a 32-bit register in the SMN address space. Satisfied by
// the SMU client; fuse reads travel over the same serialized PCI indirection
// as mailbox traffic.
type DwordReader interface {
	ReadDword(address uint32) (uint32, error)
}

// Topology describes the decoded core layout. Cores is derived from the
// logical core count and SMT ratio; PhysicalCores, Ccds, Ccxs, and
// CoresPerCcx come from the fuse registers. CoreDisableMap concatenates one
// disable byte per CCD, lowest CCD in the lowest byte.
type Topology struct {
	LogicalCores   int
	ThreadsPerCore int
	Cores          int
	PhysicalCores  int
	Ccds           int
	Ccxs           int
	CoresPerCcx    int
	CcdEnableMap   uint32
	CcdDisableMap  uint32
	CoreDisableMap uint64
}

// CcxPerCcd returns the CCX count per CCD for the family. Family 19h and
// later fuse the two core complexes of a die into one.
func CcxPerCcd(family uint32) int {
	if family >= 0x19 {
		return 1
	}
	return 2
}

// ccdEnableBitmap extracts the CCD-enable bits from the first fuse dword.
func ccdEnableBitmap(fusePresent uint32) uint32 {
	return fusePresent >> 22 & 0xff
}

// ccdDisableBitmap assembles the CCD-disable bits, split across the top of
// the first fuse dword and the bottom of the second.
func ccdDisableBitmap(fusePresent, fuseDown uint32) uint32 {
	return fusePresent>>30&0x3 | fuseDown&0x3f<<2
}

// coreDisableByte extracts the per-CCX core-disable bits from a core fuse
// dword.
func coreDisableByte(fuse uint32) uint32 {
	return fuse & 0xff
}

func fuseAddresses(family, model uint32) (present, down, disable uint32) {
	present = fusePresentBase
	down = fuseDownBase
	switch {
	case family >= 0x19:
		present += fuseShiftF19
		down += fuseShiftF19
		disable = coreDisableBase + coreDisableOffsetF19
	case family == 0x17 && !f17FuseExceptionModels[model]:
		present += fuseShiftF17
		down += fuseShiftF17
		disable = coreDisableBase + coreDisableOffsetF17
	default:
		disable = coreDisableBase + coreDisableOffsetF17
	}
	return
}

// Decode derives the topology for the given identity. The logical core and
// threads-per-core counts come from the mandatory CPUID phase and are always
// applied; fuse-register reads are best-effort. On a register read failure
// Decode returns the partially populated topology together with the error,
// and the caller decides whether to continue degraded.
func Decode(family, model uint32, logicalCores, threadsPerCore int, r DwordReader) (Topology, error) {
	t := Topology{
		LogicalCores:   logicalCores,
		ThreadsPerCore: threadsPerCore,
	}
	if threadsPerCore > 0 {
		t.Cores = logicalCores / threadsPerCore
	} else {
		t.Cores = logicalCores
	}

	presentAddr, downAddr, disableAddr := fuseAddresses(family, model)
	ccxPerCcd := CcxPerCcd(family)

	fusePresent, err := r.ReadDword(presentAddr)
	if err != nil {
		return t, fmt.Errorf("failed to read CCD fuse at 0x%x: %w", presentAddr, err)
	}
	fuseDown, err := r.ReadDword(downAddr)
	if err != nil {
		return t, fmt.Errorf("failed to read CCD fuse at 0x%x: %w", downAddr, err)
	}

	t.CcdEnableMap = ccdEnableBitmap(fusePresent)
	t.CcdDisableMap = ccdDisableBitmap(fusePresent, fuseDown)

	enable := t.CcdEnableMap
	t.Ccds = bits.OnesCount32(enable)
	t.Ccxs = t.Ccds * ccxPerCcd

	// One representative read establishes the per-CCX core capacity of this
	// part before walking the enabled CCDs.
	coreFuse, err := r.ReadDword(disableAddr)
	if err != nil {
		return t, fmt.Errorf("failed to read core disable map at 0x%x: %w", disableAddr, err)
	}
	t.CoresPerCcx = (8 - bits.OnesCount32(coreDisableByte(coreFuse))) / ccxPerCcd
	t.PhysicalCores = t.Ccxs * t.CoresPerCcx

	for ccd := 0; ccd < 8; ccd++ {
		if enable&(1<<ccd) == 0 {
			continue
		}
		fuse, err := r.ReadDword(disableAddr | uint32(ccd)<<ccdStrideShift)
		if err != nil {
			return t, fmt.Errorf("failed to read core disable map for ccd %d: %w", ccd, err)
		}
		t.CoreDisableMap |= uint64(coreDisableByte(fuse)) << (8 * ccd)
	}
	return t, nil
}
