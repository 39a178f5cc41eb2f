// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package zen

import (
	"encoding/binary"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kagashini/ZenStates-Core/internal/driver"
	"github.com/Kagashini/ZenStates-Core/internal/smu"
	"github.com/Kagashini/ZenStates-Core/internal/uarch"
)

// fakeBridge emulates the register surface the controller touches: CPUID
// leaves, the SMN indirection pair with a mailbox behind it, MSRs, and the
// physical-memory window of the power table.
type fakeBridge struct {
	cpuid    map[uint32]driver.CpuidRegisters
	cpuidErr map[uint32]error

	pointer    uint32
	smn        map[uint32]uint32
	smnReadErr map[uint32]error
	mailbox    smu.Mailbox
	firmware   func(msgID uint32, args []uint32) (status uint32, out []uint32)

	msrs        map[uint32]uint64
	msrReadErr  error
	msrWriteErr map[int]error
	msrWrites   map[int]int

	physBase uint64
	physData []byte

	closed bool
}

func (f *fakeBridge) Cpuid(leaf, subleaf uint32) (driver.CpuidRegisters, error) {
	if err := f.cpuidErr[leaf]; err != nil {
		return driver.CpuidRegisters{}, err
	}
	return f.cpuid[leaf], nil
}

func (f *fakeBridge) ReadMsr(index uint32) (uint32, uint32, error) {
	return f.ReadMsrOnCore(index, 0)
}

func (f *fakeBridge) ReadMsrOnCore(index uint32, core int) (uint32, uint32, error) {
	if f.msrReadErr != nil {
		return 0, 0, f.msrReadErr
	}
	v := f.msrs[index]
	return uint32(v), uint32(v >> 32), nil
}

func (f *fakeBridge) WriteMsrOnCore(index, eax, edx uint32, core int) error {
	if f.msrWrites == nil {
		f.msrWrites = make(map[int]int)
	}
	f.msrWrites[core]++
	if err := f.msrWriteErr[core]; err != nil {
		return err
	}
	return nil
}

func (f *fakeBridge) ReadPciConfig(pciAddress, register uint32) (uint32, error) {
	if register != 0xBC {
		return 0, fmt.Errorf("unexpected config read at 0x%x", register)
	}
	if err := f.smnReadErr[f.pointer]; err != nil {
		return 0, err
	}
	return f.smn[f.pointer], nil
}

func (f *fakeBridge) WritePciConfig(pciAddress, register, value uint32) error {
	switch register {
	case 0xB8:
		f.pointer = value
	case 0xBC:
		f.smnStore(f.pointer, value)
	default:
		return fmt.Errorf("unexpected config write at 0x%x", register)
	}
	return nil
}

// smnStore latches a mailbox transaction when the message register is
// written; every other address is plain storage.
func (f *fakeBridge) smnStore(address, value uint32) {
	if f.smn == nil {
		f.smn = make(map[uint32]uint32)
	}
	if address != f.mailbox.MsgAddress || f.firmware == nil {
		f.smn[address] = value
		return
	}
	args := make([]uint32, smu.ArgSlots)
	for i := range args {
		args[i] = f.smn[f.mailbox.ArgAddress+uint32(i)*4]
	}
	status, out := f.firmware(value, args)
	f.smn[f.mailbox.RspAddress] = status
	for i := range args {
		var v uint32
		if i < len(out) {
			v = out[i]
		}
		f.smn[f.mailbox.ArgAddress+uint32(i)*4] = v
	}
}

func (f *fakeBridge) ReadPhysicalMemory(address uint64, length int) ([]byte, error) {
	offset := int(address - f.physBase)
	if offset < 0 || offset+length > len(f.physData) {
		return nil, fmt.Errorf("physical read outside window")
	}
	return f.physData[offset : offset+length], nil
}

func (f *fakeBridge) ReadPhysicalDword(address uint64) (uint32, error) {
	raw, err := f.ReadPhysicalMemory(address, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

func (f *fakeBridge) WriteIoPort(port uint16, value byte) error { return nil }
func (f *fakeBridge) AcquireBusMutex(timeout time.Duration) bool { return true }
func (f *fakeBridge) ReleaseBusMutex()                           {}
func (f *fakeBridge) Close() error                               { f.closed = true; return nil }

func brandRegisters(name string) map[uint32]driver.CpuidRegisters {
	raw := make([]byte, 48)
	copy(raw, name)
	regs := make(map[uint32]driver.CpuidRegisters, 3)
	for i := 0; i < 3; i++ {
		chunk := raw[i*16:]
		regs[leafBrand+uint32(i)] = driver.CpuidRegisters{
			Eax: binary.LittleEndian.Uint32(chunk),
			Ebx: binary.LittleEndian.Uint32(chunk[4:]),
			Ecx: binary.LittleEndian.Uint32(chunk[8:]),
			Edx: binary.LittleEndian.Uint32(chunk[12:]),
		}
	}
	return regs
}

// vermeerBridge models a 5900X: family 19h model 21h on AM4, 12 cores in
// two CCDs with two cores fused off per CCD, SMT on.
func vermeerBridge() *fakeBridge {
	cpuid := map[uint32]driver.CpuidRegisters{
		leafSignature:   {Eax: 0x00A20F10, Ebx: 24 << 16},
		leafExtFeatures: {Ebx: uint32(uarch.PackageAM4) << 28},
		leafTopologyExt: {Ebx: 2 << 8},
	}
	for leaf, regs := range brandRegisters("AMD Ryzen 9 5900X 12-Core Processor") {
		cpuid[leaf] = regs
	}
	f := &fakeBridge{
		cpuid:   cpuid,
		mailbox: smu.Mailbox{MsgAddress: 0x03B10524, RspAddress: 0x03B10570, ArgAddress: 0x03B10A40},
		smn: map[uint32]uint32{
			0x5D288:    0x3 << 22, // two CCDs present
			0x5D28C:    0,
			0x30081D98: 0xC0, // two cores per CCX fused off
			0x32081D98: 0xC0,
		},
		msrs: map[uint32]uint64{msrPatchLevel: 0x0A201016},
	}
	f.firmware = func(msgID uint32, args []uint32) (uint32, []uint32) {
		switch msgID {
		case 0x01: // handshake echoes its argument
			return uint32(smu.StatusOK), args
		case 0x02:
			return uint32(smu.StatusOK), []uint32{0x00384500} // 56.69.0
		case 0x08:
			return uint32(smu.StatusOK), []uint32{0x002D0903}
		case 0x66:
			return uint32(smu.StatusOK), []uint32{0x9D838000, 0}
		case 0x65: // table transfer
			return uint32(smu.StatusOK), nil
		}
		return uint32(smu.StatusUnknownCmd), nil
	}
	return f
}

func TestNew_Vermeer(t *testing.T) {
	bridge := vermeerBridge()
	c, err := New(bridge)
	require.NoError(t, err)

	assert.Equal(t, StatusOK, c.Status())
	assert.NoError(t, c.LastError())

	id := c.Identity()
	assert.Equal(t, uint32(0x19), id.Family)
	assert.Equal(t, uint32(0x21), id.Model)
	assert.Equal(t, uarch.CodenameVermeer, id.Codename)
	assert.Equal(t, "AMD Ryzen 9 5900X 12-Core Processor", id.BrandString)

	topo := c.Topology()
	assert.Equal(t, 24, topo.LogicalCores)
	assert.Equal(t, 12, topo.Cores)
	assert.Equal(t, 12, topo.PhysicalCores)
	assert.Equal(t, 2, topo.Ccds)
	assert.Equal(t, 6, topo.CoresPerCcx)

	assert.Equal(t, "56.69.0", c.SmuVersion().String())
	assert.Equal(t, uint32(0x002D0903), c.TableVersion())
	assert.Equal(t, uint32(0x0A201016), c.PatchLevel())
	require.NotNil(t, c.PowerTable())
	assert.Equal(t, uint64(0x9D838000), c.PowerTable().DramBase)
}

func TestNew_MandatoryCpuidFailureAborts(t *testing.T) {
	for _, leaf := range []uint32{leafSignature, leafExtFeatures, leafTopologyExt} {
		bridge := vermeerBridge()
		bridge.cpuidErr = map[uint32]error{leaf: fmt.Errorf("cpuid refused")}
		c, err := New(bridge)
		assert.Error(t, err, "leaf 0x%x", leaf)
		assert.Nil(t, c)
	}
}

func TestNew_UnknownSiliconDegrades(t *testing.T) {
	bridge := vermeerBridge()
	// Family 17h model 0xFF matches no resolution rule.
	bridge.cpuid[leafSignature] = driver.CpuidRegisters{Eax: 0x00800FF0, Ebx: 8 << 16}
	bridge.cpuid[leafTopologyExt] = driver.CpuidRegisters{Ebx: 2 << 8}

	c, err := New(bridge)
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyOK, c.Status())
	assert.Error(t, c.LastError())
	assert.Nil(t, c.Smu())
	assert.Equal(t, uarch.CodenameUnsupported, c.Identity().Codename)

	// CPUID counts still stand without the fuse decode.
	assert.Equal(t, 4, c.Topology().Cores)

	assert.ErrorIs(t, c.SetPPTLimit(142000), ErrSmuNotConfigured)
	assert.ErrorIs(t, c.RefreshPowerTable(), ErrSmuNotConfigured)
	_, err = c.Prochot()
	assert.ErrorIs(t, err, ErrSmuNotConfigured)
}

func TestNew_FuseReadFailureDegrades(t *testing.T) {
	bridge := vermeerBridge()
	bridge.smnReadErr = map[uint32]error{0x5D288: fmt.Errorf("smn fault")}

	c, err := New(bridge)
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyOK, c.Status())
	assert.Error(t, c.LastError())
	assert.Equal(t, 12, c.Topology().Cores, "CPUID-derived count survives")
	assert.Zero(t, c.Topology().Ccds)
}

func TestNew_ZeroThreadsPerCoreFallsBack(t *testing.T) {
	bridge := vermeerBridge()
	bridge.cpuid[leafTopologyExt] = driver.CpuidRegisters{}

	c, err := New(bridge)
	require.NoError(t, err)
	assert.Equal(t, 24, c.Topology().Cores)
}

func TestNew_PicassoFirmwareReResolution(t *testing.T) {
	bridge := vermeerBridge()
	bridge.cpuid[leafSignature] = driver.CpuidRegisters{Eax: 0x00810F80, Ebx: 8 << 16}
	bridge.cpuid[leafExtFeatures] = driver.CpuidRegisters{Ebx: uint32(uarch.PackageFPx) << 28}
	bridge.mailbox = smu.Mailbox{MsgAddress: 0x03B10A20, RspAddress: 0x03B10A80, ArgAddress: 0x03B10A88}
	// Family 17h shifted fuse addresses.
	bridge.smn = map[uint32]uint32{
		0x5D258:    0x1 << 22,
		0x5D25C:    0,
		0x30081A38: 0xF0,
	}
	bridge.firmware = func(msgID uint32, args []uint32) (uint32, []uint32) {
		switch msgID {
		case 0x01:
			return uint32(smu.StatusOK), args
		case 0x02:
			return uint32(smu.StatusOK), []uint32{0x00230005} // pre-cutoff firmware
		case 0x0C:
			return uint32(smu.StatusOK), []uint32{0x001E0004}
		case 0x0B:
			return uint32(smu.StatusOK), []uint32{0x4F000000, 0}
		case 0x3D:
			return uint32(smu.StatusOK), nil
		}
		return uint32(smu.StatusUnknownCmd), nil
	}

	c, err := New(bridge)
	require.NoError(t, err)
	assert.Equal(t, uarch.CodenameRavenRidge, c.Identity().Codename,
		"pre-0x25 firmware reports the Raven Ridge layout")
	assert.Equal(t, uint32(0x23), c.SmuVersion().MajorByte())
	assert.Equal(t, uarch.ResolveSviAddresses(uarch.CodenameRavenRidge, 0x23), c.SviAddresses())
}

func TestWriteMsrAllCores_BestEffort(t *testing.T) {
	bridge := vermeerBridge()
	c, err := New(bridge)
	require.NoError(t, err)

	bridge.msrWrites = make(map[int]int)
	bridge.msrWriteErr = map[int]error{3: fmt.Errorf("busy"), 17: fmt.Errorf("busy")}

	err = c.WriteMsrAllCores(0xC0010062, 0x2, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "core 3")
	assert.Contains(t, err.Error(), "core 17")
	assert.Len(t, bridge.msrWrites, 24, "every logical core attempted")
}

func TestProchot(t *testing.T) {
	bridge := vermeerBridge()
	c, err := New(bridge)
	require.NoError(t, err)

	asserted, err := c.Prochot()
	require.NoError(t, err)
	assert.False(t, asserted)

	bridge.smn[thmProchotStatus] = 1
	asserted, err = c.Prochot()
	require.NoError(t, err)
	assert.True(t, asserted)
}

func TestSviTelemetry(t *testing.T) {
	bridge := vermeerBridge()
	c, err := New(bridge)
	require.NoError(t, err)

	svi := c.SviAddresses()
	bridge.smn[svi.Core] = 0x00304050
	bridge.smn[svi.Soc] = 0x00102030

	core, soc, err := c.SviTelemetry()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00304050), core)
	assert.Equal(t, uint32(0x00102030), soc)
}

func TestRefreshPowerTable(t *testing.T) {
	bridge := vermeerBridge()
	bridge.physBase = 0x9D838000
	bridge.physData = make([]byte, 0x948)
	binary.LittleEndian.PutUint32(bridge.physData, math.Float32bits(141.5))

	c, err := New(bridge)
	require.NoError(t, err)

	require.NoError(t, c.RefreshPowerTable())
	v, ok := c.PowerTable().Value(0)
	require.True(t, ok)
	assert.Equal(t, float32(141.5), v)
}

func TestOcMode_DesktopFollowsPBOScalar(t *testing.T) {
	bridge := vermeerBridge()
	c, err := New(bridge)
	require.NoError(t, err)

	scalar := uint32(100)
	bridge.firmware = func(msgID uint32, args []uint32) (uint32, []uint32) {
		if msgID == 0x6C {
			return uint32(smu.StatusOK), []uint32{scalar}
		}
		return uint32(smu.StatusOK), nil
	}

	active, err := c.OcMode()
	require.NoError(t, err)
	assert.False(t, active, "default scalar means PBO, not manual OC")

	scalar = 0
	active, err = c.OcMode()
	require.NoError(t, err)
	assert.True(t, active)
}

func TestCoreMultiplier(t *testing.T) {
	bridge := vermeerBridge()
	// FID 0x90, DID 8: 25*144 / (12.5*8) = 36.
	bridge.msrs[msrPstateStat] = 0x0890
	c, err := New(bridge)
	require.NoError(t, err)

	multi, err := c.CoreMultiplier(0)
	require.NoError(t, err)
	assert.Equal(t, 36.0, multi)

	bridge.msrs[msrPstateStat] = 0
	_, err = c.CoreMultiplier(0)
	assert.Error(t, err, "zero divisor field")
}

func TestSetFrequencyCcd_CoversEveryCcx(t *testing.T) {
	bridge := vermeerBridge()
	c, err := New(bridge)
	require.NoError(t, err)

	var masks []uint32
	bridge.firmware = func(msgID uint32, args []uint32) (uint32, []uint32) {
		if msgID == 0x5D {
			masks = append(masks, args[0]&0xFFF00000)
		}
		return uint32(smu.StatusOK), nil
	}

	require.NoError(t, c.SetFrequencyCcd(1, 4500))
	// Family 19h has a single CCX per CCD.
	assert.Equal(t, []uint32{0x10000000}, masks)
}

func TestClose_ReleasesBridge(t *testing.T) {
	bridge := vermeerBridge()
	c, err := New(bridge)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.True(t, bridge.closed)
}
