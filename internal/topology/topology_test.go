// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package topology

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSmn struct {
	regs  map[uint32]uint32
	fail  map[uint32]bool
	reads []uint32
}

func (f *fakeSmn) ReadDword(address uint32) (uint32, error) {
	f.reads = append(f.reads, address)
	if f.fail[address] {
		return 0, fmt.Errorf("smn read failed at 0x%x", address)
	}
	return f.regs[address], nil
}

func TestDecode_Vermeer(t *testing.T) {
	// Family 19h: fuse dwords shifted by 0x70, one CCX per CCD. Two CCDs
	// enabled, six cores per CCD (5900X-style part).
	smn := &fakeSmn{regs: map[uint32]uint32{
		0x5D288:    0x3 << 22, // CCD enable bits
		0x5D28C:    0,
		0x30081D98: 0xC0, // two cores fused off in the representative CCD
		0x32081D98: 0xC0, // CCD 1
	}}
	top, err := Decode(0x19, 0x21, 24, 2, smn)
	require.NoError(t, err)
	assert.Equal(t, 24, top.LogicalCores)
	assert.Equal(t, 12, top.Cores)
	assert.Equal(t, 2, top.Ccds)
	assert.Equal(t, 2, top.Ccxs)
	assert.Equal(t, 6, top.CoresPerCcx)
	assert.Equal(t, 12, top.PhysicalCores)
	assert.Equal(t, uint32(0x3), top.CcdEnableMap)
	assert.Equal(t, uint64(0xC0C0), top.CoreDisableMap)
}

func TestDecode_Matisse(t *testing.T) {
	// Model 0x71 is in the family 17h fuse exception set: unshifted fuse
	// addresses, two CCXs per CCD. One CCD, three cores per CCX (3600-style).
	smn := &fakeSmn{regs: map[uint32]uint32{
		0x5D218:    0x1 << 22,
		0x5D21C:    0,
		0x30081A38: 0x11, // one core disabled in each CCX
	}}
	top, err := Decode(0x17, 0x71, 12, 2, smn)
	require.NoError(t, err)
	assert.Equal(t, 6, top.Cores)
	assert.Equal(t, 1, top.Ccds)
	assert.Equal(t, 2, top.Ccxs)
	assert.Equal(t, 3, top.CoresPerCcx)
	assert.Equal(t, 6, top.PhysicalCores)
}

func TestDecode_FuseAddressShift(t *testing.T) {
	// Family 17h models outside the exception set read the fuse dwords at
	// base+0x40.
	smn := &fakeSmn{regs: map[uint32]uint32{
		0x5D258:    0x1 << 22,
		0x5D25C:    0,
		0x30081A38: 0,
	}}
	_, err := Decode(0x17, 0x11, 8, 2, smn)
	require.NoError(t, err)
	assert.Contains(t, smn.reads, uint32(0x5D258))
	assert.Contains(t, smn.reads, uint32(0x5D25C))
	assert.NotContains(t, smn.reads, uint32(0x5D218))
}

func TestDecode_ThreadsPerCoreZero(t *testing.T) {
	// SMT field decoding to zero must not divide; core count falls back to
	// the logical count.
	smn := &fakeSmn{regs: map[uint32]uint32{
		0x5D288: 0x1 << 22,
	}}
	top, err := Decode(0x19, 0x21, 8, 0, smn)
	require.NoError(t, err)
	assert.Equal(t, 8, top.Cores)
	assert.Equal(t, 8, top.LogicalCores)
}

func TestDecode_RegisterFailureIsRecoverable(t *testing.T) {
	smn := &fakeSmn{
		regs: map[uint32]uint32{},
		fail: map[uint32]bool{0x5D288: true},
	}
	top, err := Decode(0x19, 0x21, 16, 2, smn)
	assert.Error(t, err)
	// CPUID-derived counts survive the fuse failure.
	assert.Equal(t, 8, top.Cores)
	assert.Equal(t, 16, top.LogicalCores)
	assert.Equal(t, 0, top.Ccds)
}

func TestDecode_CcdCountMatchesEnableBitmap(t *testing.T) {
	for _, enable := range []uint32{0x1, 0x3, 0x5, 0xF, 0xFF} {
		smn := &fakeSmn{regs: map[uint32]uint32{0x5D288: enable << 22}}
		top, err := Decode(0x19, 0x21, 32, 2, smn)
		require.NoError(t, err)
		expected := 0
		for b := enable; b != 0; b >>= 1 {
			expected += int(b & 1)
		}
		assert.Equal(t, expected, top.Ccds, "enable map 0x%x", enable)
		assert.Equal(t, expected*CcxPerCcd(0x19), top.Ccxs)
	}
}

func TestCcxPerCcd(t *testing.T) {
	assert.Equal(t, 2, CcxPerCcd(0x17))
	assert.Equal(t, 1, CcxPerCcd(0x19))
	assert.Equal(t, 1, CcxPerCcd(0x1a))
}

func TestCoreMaskRoundTrip(t *testing.T) {
	t.Run("family 17h", func(t *testing.T) {
		for ccd := 0; ccd < 2; ccd++ {
			for ccx := 0; ccx < 2; ccx++ {
				for core := 0; core < 4; core++ {
					mask := MakeCoreMask(0x17, core, ccd, ccx)
					gotCore, gotCcd, gotCcx := DecodeCoreMask(mask)
					assert.Equal(t, core, gotCore)
					assert.Equal(t, ccd, gotCcd)
					assert.Equal(t, ccx, gotCcx)
				}
			}
		}
	})
	t.Run("family 19h folds ccx", func(t *testing.T) {
		for ccd := 0; ccd < 2; ccd++ {
			for core := 0; core < 8; core++ {
				mask := MakeCoreMask(0x19, core, ccd, 1)
				gotCore, gotCcd, gotCcx := DecodeCoreMask(mask)
				assert.Equal(t, core, gotCore)
				assert.Equal(t, ccd, gotCcd)
				assert.Equal(t, 0, gotCcx, "single-CCX families fold the CCX field")
			}
		}
	})
}

func TestMakeCoreMask_KnownEncoding(t *testing.T) {
	// Core 2 on CCD 1, CCX 0, family 19h: 0x1 in bits [31:28], 0x2 in
	// bits [23:20].
	assert.Equal(t, uint32(0x10200000), MakeCoreMask(0x19, 2, 1, 0))
	// Family 17h keeps the CCX field: core 1, CCX 1, CCD 0.
	assert.Equal(t, uint32(0x01100000), MakeCoreMask(0x17, 1, 0, 1))
}
