// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

// Package smu implements the System Management Unit mailbox protocol: a
// synchronous request/response transaction scheme layered on the SMN
// indirect-addressing registers in PCI configuration space, plus the static
// per-code-name endpoint configuration that names the mailbox registers and
// message IDs.
package smu

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// Op identifies a mailbox operation independently of the firmware-specific
// message ID that encodes it on a given endpoint.
type Op string

const (
	OpTestMessage          Op = "TestMessage"
	OpGetSmuVersion        Op = "GetSmuVersion"
	OpGetTableVersion      Op = "GetTableVersion"
	OpTransferTableToDram  Op = "TransferTableToDram"
	OpGetDramBaseAddress   Op = "GetDramBaseAddress"
	OpEnableOcMode         Op = "EnableOcMode"
	OpDisableOcMode        Op = "DisableOcMode"
	OpSetFrequencyAllCores Op = "SetFrequencyAllCores"
	OpSetFrequencyPerCore  Op = "SetFrequencyPerCore"
	OpSetPPTLimit          Op = "SetPPTLimit"
	OpSetTDCLimit          Op = "SetTDCLimit"
	OpSetEDCLimit          Op = "SetEDCLimit"
	OpSetHTCLimit          Op = "SetHTCLimit"
	OpGetPBOScalar         Op = "GetPBOScalar"
	OpSetPBOScalar         Op = "SetPBOScalar"
	OpGetPsmMargin         Op = "GetPsmMargin"
	OpSetPsmMargin         Op = "SetPsmMargin"
	OpSetPsmMarginAllCores Op = "SetPsmMarginAllCores"
)

// Status is the response code read from the mailbox response register.
type Status uint32

const (
	StatusOK                Status = 0x01
	StatusCmdRejectedBusy   Status = 0xFC
	StatusCmdRejectedPrereq Status = 0xFD
	StatusUnknownCmd        Status = 0xFE
	StatusFailed            Status = 0xFF
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusCmdRejectedBusy:
		return "CmdRejectedBusy"
	case StatusCmdRejectedPrereq:
		return "CmdRejectedPrereq"
	case StatusUnknownCmd:
		return "UnknownCmd"
	case StatusFailed:
		return "Failed"
	}
	return fmt.Sprintf("Status(0x%x)", uint32(s))
}

// Mailbox names the three SMN registers of one request/response mailbox.
type Mailbox struct {
	MsgAddress uint32
	RspAddress uint32
	ArgAddress uint32
}

// Endpoint is the static configuration for one code name's SMU: the PCI
// device carrying the SMN indirection registers, the mailbox register
// addresses, the message-ID table, the table-transfer argument, and the
// power-table schema. Endpoints are value types; callers receive copies.
type Endpoint struct {
	Codename       string
	PciAddress     uint32
	AddrPointerReg uint32
	DataPortReg    uint32
	Mailbox        Mailbox
	Messages       map[Op]uint32
	TransferArg    uint32
	TableVersion   uint32
	TableSizeBytes int
}

// MessageID resolves an operation to the endpoint's firmware message ID.
func (e Endpoint) MessageID(op Op) (uint32, bool) {
	id, ok := e.Messages[op]
	return id, ok
}

// SupportedOps returns the set of operations this endpoint's firmware
// accepts.
func (e Endpoint) SupportedOps() mapset.Set[Op] {
	ops := mapset.NewSet[Op]()
	for op := range e.Messages {
		ops.Add(op)
	}
	return ops
}
