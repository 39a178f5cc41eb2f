/*
Package driver exposes the kernel register-access bridge used by the rest of
the library: raw CPUID, MSR read/write on a chosen logical processor, PCI
configuration space access, physical memory reads, I/O port writes, and the
process-wide PCI bus mutex that serializes configuration-space transactions.
*/
package driver

// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"time"
)

// CpuidRegisters holds the four output registers of a CPUID invocation.
type CpuidRegisters struct {
	Eax uint32
	Ebx uint32
	Ecx uint32
	Edx uint32
}

// RegisterIO is the contract between the library core and the platform's
// register-access bridge. Implementations must be safe for concurrent use;
// PCI configuration space callers additionally serialize through
// AcquireBusMutex/ReleaseBusMutex because the configuration bus is shared
// with other agents, including platform firmware.
type RegisterIO interface {
	// Cpuid executes CPUID with the given leaf and subleaf.
	Cpuid(leaf, subleaf uint32) (CpuidRegisters, error)

	// ReadMsr reads a model-specific register on logical processor 0.
	ReadMsr(index uint32) (eax, edx uint32, err error)

	// ReadMsrOnCore reads a model-specific register on the given logical
	// processor. MSRs are per-core state; the implementation is responsible
	// for addressing the correct core regardless of the calling thread.
	ReadMsrOnCore(index uint32, core int) (eax, edx uint32, err error)

	// WriteMsrOnCore writes a model-specific register on the given logical
	// processor.
	WriteMsrOnCore(index uint32, eax, edx uint32, core int) error

	// ReadPciConfig reads a dword from PCI configuration space. pciAddress
	// encodes bus[15:8] device[7:3] function[2:0].
	ReadPciConfig(pciAddress, register uint32) (uint32, error)

	// WritePciConfig writes a dword to PCI configuration space.
	WritePciConfig(pciAddress, register, value uint32) error

	// ReadPhysicalMemory reads length bytes starting at the given physical
	// address.
	ReadPhysicalMemory(address uint64, length int) ([]byte, error)

	// ReadPhysicalDword reads a single 32-bit word at the given physical
	// address. Usable on platforms where bulk reads above the 32-bit
	// boundary are not available.
	ReadPhysicalDword(address uint64) (uint32, error)

	// WriteIoPort writes one byte to an I/O port.
	WriteIoPort(port uint16, value byte) error

	// AcquireBusMutex acquires the process-wide PCI configuration bus mutex,
	// waiting at most timeout. Returns false if the mutex could not be
	// acquired within the bound.
	AcquireBusMutex(timeout time.Duration) bool

	// ReleaseBusMutex releases the PCI configuration bus mutex.
	ReleaseBusMutex()

	// Close releases the bridge and any kernel resources it holds.
	Close() error
}

// PciAddress builds the bus/device/function encoding used by ReadPciConfig
// and WritePciConfig.
func PciAddress(bus, device, function uint32) uint32 {
	return bus<<8 | (device&0x1f)<<3 | function&0x7
}
