//go:build linux

package driver

// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	msrPath   = "/dev/cpu/%d/msr"
	cpuidPath = "/dev/cpu/%d/cpuid"
	memPath   = "/dev/mem"
	portPath  = "/dev/port"
	pciPath   = "/sys/bus/pci/devices/0000:%02x:%02x.%d/config"

	busLockPath = "/run/lock/zenstates-pci.lock"

	// Polling granularity while waiting for the PCI bus lock. The lock is
	// held only for the duration of one register access or one mailbox
	// transaction, so contention windows are short.
	busLockPollInterval = 500 * time.Microsecond
)

// LinuxBridge implements RegisterIO on top of the standard Linux register
// device nodes: the msr and cpuid cpu devices, sysfs PCI config files,
// /dev/mem, and /dev/port. MSR and CPUID device files are per logical
// processor, so per-core operations address the target core through its
// device node rather than by migrating the calling thread.
type LinuxBridge struct {
	busLock   *os.File
	busLockMu sync.Mutex // in-process serialization in front of the file lock
	memFile   *os.File
	closed    bool
}

// NewLinuxBridge opens the register-access bridge. It fails if the msr and
// cpuid kernel modules are not loaded or the process lacks the privilege to
// open them.
func NewLinuxBridge() (*LinuxBridge, error) {
	msrDev := fmt.Sprintf(msrPath, 0)
	if _, err := os.Stat(msrDev); err != nil {
		return nil, errors.Wrapf(err, "msr device %s not available, load the msr module (modprobe msr)", msrDev)
	}
	cpuidDev := fmt.Sprintf(cpuidPath, 0)
	if _, err := os.Stat(cpuidDev); err != nil {
		return nil, errors.Wrapf(err, "cpuid device %s not available, load the cpuid module (modprobe cpuid)", cpuidDev)
	}
	lock, err := os.OpenFile(busLockPath, os.O_CREATE|os.O_RDWR, 0644) // #nosec G302
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PCI bus lock file")
	}
	mem, err := os.OpenFile(memPath, os.O_RDONLY, 0)
	if err != nil {
		// Physical memory access is only needed for the power table; leave
		// it nil and fail those reads individually.
		slog.Warn("physical memory device not available", slog.String("path", memPath), slog.String("error", err.Error()))
		mem = nil
	}
	return &LinuxBridge{busLock: lock, memFile: mem}, nil
}

func (b *LinuxBridge) Cpuid(leaf, subleaf uint32) (CpuidRegisters, error) {
	var regs CpuidRegisters
	f, err := os.OpenFile(fmt.Sprintf(cpuidPath, 0), os.O_RDONLY, 0)
	if err != nil {
		return regs, errors.Wrap(err, "failed to open cpuid device")
	}
	defer f.Close()
	// The cpuid device encodes the leaf in the low dword of the file offset
	// and the subleaf in the high dword.
	buf := make([]byte, 16)
	offset := int64(subleaf)<<32 | int64(leaf)
	n, err := f.ReadAt(buf, offset)
	if err != nil {
		return regs, errors.Wrapf(err, "cpuid read failed for leaf 0x%x subleaf 0x%x", leaf, subleaf)
	}
	if n != 16 {
		return regs, fmt.Errorf("cpuid short read: %d bytes", n)
	}
	regs.Eax = binary.LittleEndian.Uint32(buf[0:])
	regs.Ebx = binary.LittleEndian.Uint32(buf[4:])
	regs.Ecx = binary.LittleEndian.Uint32(buf[8:])
	regs.Edx = binary.LittleEndian.Uint32(buf[12:])
	return regs, nil
}

func (b *LinuxBridge) ReadMsr(index uint32) (uint32, uint32, error) {
	return b.ReadMsrOnCore(index, 0)
}

func (b *LinuxBridge) ReadMsrOnCore(index uint32, core int) (uint32, uint32, error) {
	f, err := os.OpenFile(fmt.Sprintf(msrPath, core), os.O_RDONLY, 0)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "failed to open msr device for core %d", core)
	}
	defer f.Close()
	buf := make([]byte, 8)
	n, err := f.ReadAt(buf, int64(index))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "msr 0x%x read failed on core %d", index, core)
	}
	if n != 8 {
		return 0, 0, fmt.Errorf("msr 0x%x short read on core %d: %d bytes", index, core, n)
	}
	value := binary.LittleEndian.Uint64(buf)
	return uint32(value), uint32(value >> 32), nil
}

func (b *LinuxBridge) WriteMsrOnCore(index, eax, edx uint32, core int) error {
	f, err := os.OpenFile(fmt.Sprintf(msrPath, core), os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "failed to open msr device for core %d", core)
	}
	defer f.Close()
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(edx)<<32|uint64(eax))
	if _, err := f.WriteAt(buf, int64(index)); err != nil {
		return errors.Wrapf(err, "msr 0x%x write failed on core %d", index, core)
	}
	return nil
}

func (b *LinuxBridge) ReadPciConfig(pciAddress, register uint32) (uint32, error) {
	f, err := os.OpenFile(pciConfigFile(pciAddress), os.O_RDONLY, 0)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open PCI config for device %06x", pciAddress)
	}
	defer f.Close()
	buf := make([]byte, 4)
	if _, err := f.ReadAt(buf, int64(register)); err != nil {
		return 0, errors.Wrapf(err, "PCI config read failed at 0x%x", register)
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (b *LinuxBridge) WritePciConfig(pciAddress, register, value uint32) error {
	f, err := os.OpenFile(pciConfigFile(pciAddress), os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "failed to open PCI config for device %06x", pciAddress)
	}
	defer f.Close()
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	if _, err := f.WriteAt(buf, int64(register)); err != nil {
		return errors.Wrapf(err, "PCI config write failed at 0x%x", register)
	}
	return nil
}

func (b *LinuxBridge) ReadPhysicalMemory(address uint64, length int) ([]byte, error) {
	if b.memFile == nil {
		return nil, fmt.Errorf("physical memory device not available")
	}
	buf := make([]byte, length)
	n, err := b.memFile.ReadAt(buf, int64(address)) // #nosec G115
	if err != nil {
		return nil, errors.Wrapf(err, "physical memory read failed at 0x%x", address)
	}
	return buf[:n], nil
}

func (b *LinuxBridge) ReadPhysicalDword(address uint64) (uint32, error) {
	data, err := b.ReadPhysicalMemory(address, 4)
	if err != nil {
		return 0, err
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("physical memory short read at 0x%x", address)
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (b *LinuxBridge) WriteIoPort(port uint16, value byte) error {
	f, err := os.OpenFile(portPath, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrap(err, "failed to open I/O port device")
	}
	defer f.Close()
	if _, err := f.WriteAt([]byte{value}, int64(port)); err != nil {
		return errors.Wrapf(err, "I/O port write failed at 0x%x", port)
	}
	return nil
}

// AcquireBusMutex takes the in-process lock, then polls for the advisory
// file lock shared with other processes until the timeout expires. The file
// lock is what excludes firmware-adjacent tooling running alongside us.
func (b *LinuxBridge) AcquireBusMutex(timeout time.Duration) bool {
	b.busLockMu.Lock()
	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(b.busLock.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return true
		}
		if err != unix.EWOULDBLOCK {
			slog.Debug("PCI bus lock error", slog.String("error", err.Error()))
		}
		if time.Now().After(deadline) {
			b.busLockMu.Unlock()
			return false
		}
		time.Sleep(busLockPollInterval)
	}
}

func (b *LinuxBridge) ReleaseBusMutex() {
	if err := unix.Flock(int(b.busLock.Fd()), unix.LOCK_UN); err != nil {
		slog.Debug("PCI bus unlock error", slog.String("error", err.Error()))
	}
	b.busLockMu.Unlock()
}

func (b *LinuxBridge) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	var firstErr error
	if b.memFile != nil {
		if err := b.memFile.Close(); err != nil {
			firstErr = err
		}
	}
	if err := b.busLock.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func pciConfigFile(pciAddress uint32) string {
	bus := pciAddress >> 8 & 0xff
	device := pciAddress >> 3 & 0x1f
	function := pciAddress & 0x7
	return fmt.Sprintf(pciPath, bus, device, function)
}
