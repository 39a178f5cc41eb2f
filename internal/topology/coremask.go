// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package topology

// Core mask encoding used by per-core SMU commands: CCD index in bits
// [31:28], CCX-within-CCD in [27:24], core-within-CCX in [23:20]. On
// families with a single CCX per CCD the CCX field folds to zero.
const (
	coreMaskCoreShift = 20
	coreMaskCcxShift  = 24
	coreMaskCcdShift  = 28
)

// MakeCoreMask packs a (core, ccd, ccx) triple into the family-specific
// mask encoding. Field values wrap at the family's structural bounds, which
// matches how the fuse-limited hardware interprets them.
func MakeCoreMask(family uint32, core, ccd, ccx int) uint32 {
	ccxPerCcd := CcxPerCcd(family)
	coresPerCcx := 8 / ccxPerCcd
	return uint32(ccd)<<coreMaskCcdShift |
		(uint32(ccx%ccxPerCcd)&0xf)<<coreMaskCcxShift |
		(uint32(core%coresPerCcx)&0xf)<<coreMaskCoreShift
}

// DecodeCoreMask recovers the (core, ccd, ccx) triple from a mask.
func DecodeCoreMask(mask uint32) (core, ccd, ccx int) {
	core = int(mask >> coreMaskCoreShift & 0xf)
	ccx = int(mask >> coreMaskCcxShift & 0xf)
	ccd = int(mask >> coreMaskCcdShift & 0xf)
	return
}
