// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

// Package pmtable acquires the SMU power/telemetry table: it asks the
// firmware to transfer the table into its DRAM window, reads the window
// back through physical memory, and decodes it into 32-bit float values.
package pmtable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync"

	"github.com/Kagashini/ZenStates-Core/internal/smu"
)

// ErrAllZero reports a decode in which every value was exactly zero, which
// means the DRAM window was stale or never populated. The previous snapshot
// is kept.
var ErrAllZero = errors.New("power table decoded to all zeros")

// ErrNoDramBase reports that the table's DRAM window address has not been
// resolved.
var ErrNoDramBase = errors.New("power table DRAM base address not resolved")

// TableTransferrer triggers the firmware-side copy of the power table into
// the DRAM window. Implemented by the SMU client.
type TableTransferrer interface {
	TransferTableToDram() (smu.Result, error)
}

// PhysicalReader reads physical memory. Implemented by the register bridge.
type PhysicalReader interface {
	ReadPhysicalMemory(address uint64, length int) ([]byte, error)
	ReadPhysicalDword(address uint64) (uint32, error)
}

// Table is the decoded power telemetry table. The DRAM base is resolved
// once at construction; Values returns the last committed snapshot, and a
// failed refresh never replaces it partially.
type Table struct {
	Version   uint32
	SizeBytes int
	DramBase  uint64

	mu     sync.RWMutex
	values []float32
}

// New builds a table descriptor. A zero dramBase marks the window as
// unresolved; refreshes will fail until it is known.
func New(version uint32, sizeBytes int, dramBase uint64) *Table {
	return &Table{Version: version, SizeBytes: sizeBytes, DramBase: dramBase}
}

// Values returns the last committed snapshot, or nil if no refresh has
// succeeded yet. The returned slice is shared and must not be mutated.
func (t *Table) Values() []float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values
}

// Value returns one entry of the last committed snapshot.
func (t *Table) Value(index int) (float32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index < 0 || index >= len(t.values) {
		return 0, false
	}
	return t.values[index], true
}

// Refresh re-runs the transfer-and-decode sequence. On any failure the
// previously committed snapshot is left untouched.
func (t *Table) Refresh(transfer TableTransferrer, mem PhysicalReader) error {
	if t.DramBase == 0 {
		return ErrNoDramBase
	}
	if t.SizeBytes <= 0 {
		return fmt.Errorf("power table size unknown")
	}
	res, err := transfer.TransferTableToDram()
	if err != nil {
		return fmt.Errorf("table transfer command failed: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("table transfer rejected: %s", res.Status)
	}

	var raw []byte
	if bits.UintSize == 64 {
		raw, err = readBulk(mem, t.DramBase, t.SizeBytes)
	} else {
		// Narrow platforms cannot map the whole window at once; walk it one
		// dword at a time.
		raw, err = readDwords(mem, t.DramBase, t.SizeBytes)
	}
	if err != nil {
		return err
	}

	values, err := decode(raw)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.values = values
	t.mu.Unlock()
	return nil
}

func readBulk(mem PhysicalReader, base uint64, size int) ([]byte, error) {
	raw, err := mem.ReadPhysicalMemory(base, size)
	if err != nil {
		return nil, fmt.Errorf("bulk table read failed: %w", err)
	}
	if len(raw) < size {
		return nil, fmt.Errorf("bulk table read truncated: %d of %d bytes", len(raw), size)
	}
	return raw, nil
}

func readDwords(mem PhysicalReader, base uint64, size int) ([]byte, error) {
	raw := make([]byte, size)
	for offset := 0; offset < size; offset += 4 {
		v, err := mem.ReadPhysicalDword(base + uint64(offset))
		if err != nil {
			return nil, fmt.Errorf("table read failed at offset 0x%x: %w", offset, err)
		}
		binary.LittleEndian.PutUint32(raw[offset:], v)
	}
	return raw, nil
}

func decode(raw []byte) ([]float32, error) {
	values := make([]float32, len(raw)/4)
	allZero := true
	for i := range values {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		if bits != 0 {
			allZero = false
		}
		values[i] = math.Float32frombits(bits)
	}
	if allZero {
		return nil, ErrAllZero
	}
	return values, nil
}
