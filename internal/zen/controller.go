// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

// Package zen is the top-level controller for Zen-family processors. It
// owns the register-access bridge, resolves silicon identity and topology,
// configures the SMU mailbox client, and exposes the telemetry and
// power/frequency control operations.
package zen

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Kagashini/ZenStates-Core/internal/driver"
	"github.com/Kagashini/ZenStates-Core/internal/pmtable"
	"github.com/Kagashini/ZenStates-Core/internal/smu"
	"github.com/Kagashini/ZenStates-Core/internal/topology"
	"github.com/Kagashini/ZenStates-Core/internal/uarch"
)

// CPUID leaves consumed during initialization.
const (
	leafSignature   = 0x00000001
	leafExtFeatures = 0x80000001
	leafBrand       = 0x80000002 // through 0x80000004
	leafTopologyExt = 0x8000001E
)

// Model-specific registers and SMN registers used by the controller.
const (
	msrPatchLevel = 0x0000008B

	// Effective P-state FID/DID fields for the multiplier query.
	msrPstateStat = 0xC0010293

	// Manual OC flag on APU parts, bit 1.
	msrOcModeStatus = 0xC0010292

	// THM block PROCHOT status, bit 0.
	thmProchotStatus = 0x00059804
)

// Status describes the outcome of controller initialization.
type Status int

const (
	// StatusOK means identity, topology, and the SMU configuration all
	// resolved.
	StatusOK Status = iota
	// StatusPartiallyOK means the mandatory identity phase succeeded but a
	// best-effort phase (topology or SMU configuration/telemetry) did not.
	// The controller is usable; topology-derived addressing may not be.
	StatusPartiallyOK
)

func (s Status) String() string {
	if s == StatusOK {
		return "OK"
	}
	return "PartiallyOK"
}

// ErrSmuNotConfigured is returned by SMU-backed operations when no endpoint
// configuration exists for the resolved code name.
var ErrSmuNotConfigured = errors.New("SMU endpoint not configured for this processor")

// Identity is the resolved silicon identity, immutable after construction.
type Identity struct {
	Signature   uint32
	Family      uint32
	Model       uint32
	PackageType uarch.PackageType
	Codename    string
	BrandString string
}

// Controller owns one register-access bridge for its lifetime and exposes
// all public operations of the library.
type Controller struct {
	io driver.RegisterIO

	identity Identity
	topo     topology.Topology

	client       *smu.Client
	smuVersion   smu.Version
	tableVersion uint32
	svi          uarch.SviAddressPair
	table        *pmtable.Table
	patchLevel   uint32

	status    Status
	lastError error
}

// New runs the initialization sequence against an opened register bridge.
// A failure in the mandatory identity phase (CPUID leaves 1, 0x80000001,
// 0x8000001E) aborts construction; failures in the topology and SMU
// configuration phases leave the controller usable with StatusPartiallyOK
// and the triggering error retained.
func New(io driver.RegisterIO) (*Controller, error) {
	c := &Controller{io: io, status: StatusOK}

	// Mandatory identity phase.
	sig, err := io.Cpuid(leafSignature, 0)
	if err != nil {
		return nil, fmt.Errorf("mandatory CPUID leaf 0x1 failed: %w", err)
	}
	c.identity.Signature = sig.Eax
	c.identity.Family = decodeFamily(sig.Eax)
	c.identity.Model = decodeModel(sig.Eax)
	logicalCores := int(sig.Ebx >> 16 & 0xff)

	ext, err := io.Cpuid(leafExtFeatures, 0)
	if err != nil {
		return nil, fmt.Errorf("mandatory CPUID leaf 0x80000001 failed: %w", err)
	}
	c.identity.PackageType = uarch.PackageType(ext.Ebx >> 28)

	// First resolution happens without a firmware version; the Picasso
	// tie-break is re-run once the SMU reports one.
	c.identity.Codename = uarch.Resolve(c.identity.Family, c.identity.Model, c.identity.PackageType, 0)

	c.configureSmu()

	// Brand string is informational only.
	c.identity.BrandString = c.readBrandString()

	topoExt, err := io.Cpuid(leafTopologyExt, 0)
	if err != nil {
		return nil, fmt.Errorf("mandatory CPUID leaf 0x8000001E failed: %w", err)
	}
	// A zero threads-per-core field is taken at face value; the topology
	// decode falls back to the logical count rather than dividing.
	threadsPerCore := int(topoExt.Ebx >> 8 & 0xff)

	c.decodeTopology(logicalCores, threadsPerCore)
	c.configureTelemetry()

	slog.Info("controller initialized",
		slog.String("codename", c.identity.Codename),
		slog.String("status", c.status.String()),
		slog.Int("cores", c.topo.Cores),
		slog.Int("ccds", c.topo.Ccds))
	return c, nil
}

// configureSmu looks up the endpoint for the resolved code name, builds the
// mailbox client, and queries the firmware and table versions. A missing
// endpoint or failed version query degrades the controller instead of
// aborting it.
func (c *Controller) configureSmu() {
	ep, err := smu.LookupEndpoint(c.identity.Codename)
	if err != nil {
		c.degrade(err)
		return
	}
	c.client = smu.NewClient(c.io, ep)

	version, err := c.client.GetSmuVersion()
	if err != nil {
		c.degrade(fmt.Errorf("SMU version query failed: %w", err))
		return
	}
	c.smuVersion = version

	// Re-run the code-name resolution now that the firmware version is
	// known; Picasso silicon on early firmware re-resolves to RavenRidge.
	resolved := uarch.Resolve(c.identity.Family, c.identity.Model, c.identity.PackageType, version.MajorByte())
	if resolved != c.identity.Codename {
		slog.Debug("code name re-resolved with firmware version",
			slog.String("from", c.identity.Codename), slog.String("to", resolved))
		c.identity.Codename = resolved
		if ep, err = smu.LookupEndpoint(resolved); err == nil {
			c.client = smu.NewClient(c.io, ep)
		}
	}

	if tv, err := c.client.GetTableVersion(); err == nil {
		c.tableVersion = tv
	} else {
		c.tableVersion = c.client.Endpoint().TableVersion
	}
}

// decodeTopology runs the fuse-register decode. Failures are recoverable:
// the CPUID-derived counts stay, the error is retained, and the controller
// continues degraded.
func (c *Controller) decodeTopology(logicalCores, threadsPerCore int) {
	if c.client == nil {
		c.topo = topology.Topology{LogicalCores: logicalCores, ThreadsPerCore: threadsPerCore}
		if threadsPerCore > 0 {
			c.topo.Cores = logicalCores / threadsPerCore
		} else {
			c.topo.Cores = logicalCores
		}
		return
	}
	topo, err := topology.Decode(c.identity.Family, c.identity.Model, logicalCores, threadsPerCore, c.client)
	c.topo = topo
	if err != nil {
		c.degrade(err)
	}
}

// configureTelemetry runs the final best-effort block: microcode patch
// level, SVI2 addresses, power-table descriptor, and the SMU handshake.
func (c *Controller) configureTelemetry() {
	if eax, _, err := c.io.ReadMsr(msrPatchLevel); err == nil {
		c.patchLevel = eax
	} else {
		c.degrade(fmt.Errorf("patch level read failed: %w", err))
	}

	c.svi = uarch.ResolveSviAddresses(c.identity.Codename, c.smuVersion.MajorByte())

	if c.client == nil {
		return
	}
	ep := c.client.Endpoint()
	dramBase, err := c.client.GetDramBaseAddress()
	if err != nil {
		c.degrade(fmt.Errorf("DRAM base address query failed: %w", err))
		dramBase = 0
	}
	c.table = pmtable.New(c.tableVersion, ep.TableSizeBytes, dramBase)

	res, err := c.client.TestMessage()
	if err != nil {
		c.degrade(fmt.Errorf("SMU test message failed: %w", err))
	} else if !res.OK() {
		c.degrade(fmt.Errorf("SMU test message rejected: %s", res.Status))
	}
}

func (c *Controller) degrade(err error) {
	slog.Warn("initialization phase degraded", slog.String("error", err.Error()))
	c.status = StatusPartiallyOK
	c.lastError = err
}

// decodeFamily combines the base and extended family fields of the CPUID
// signature.
func decodeFamily(signature uint32) uint32 {
	base := signature >> 8 & 0xf
	if base == 0xf {
		return base + (signature >> 20 & 0xff)
	}
	return base
}

// decodeModel combines the base and extended model fields of the CPUID
// signature.
func decodeModel(signature uint32) uint32 {
	return signature>>4&0xf | signature>>12&0xf0
}

func (c *Controller) readBrandString() string {
	var sb strings.Builder
	for leaf := uint32(leafBrand); leaf <= leafBrand+2; leaf++ {
		regs, err := c.io.Cpuid(leaf, 0)
		if err != nil {
			return ""
		}
		for _, r := range []uint32{regs.Eax, regs.Ebx, regs.Ecx, regs.Edx} {
			sb.WriteByte(byte(r))
			sb.WriteByte(byte(r >> 8))
			sb.WriteByte(byte(r >> 16))
			sb.WriteByte(byte(r >> 24))
		}
	}
	return strings.TrimSpace(strings.Trim(sb.String(), "\x00"))
}
