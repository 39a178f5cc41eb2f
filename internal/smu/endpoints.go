// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package smu

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/Kagashini/ZenStates-Core/internal/uarch"
)

// SMN indirection registers on the root complex (bus 0, device 0, function
// 0). Writing the target SMN address to the pointer register exposes the
// addressed dword through the data port.
const (
	smnRootComplex    = 0x00000000
	smnAddrPointerReg = 0xB8
	smnDataPortReg    = 0xBC
)

// Mailbox register blocks by firmware generation.
var (
	mailboxZen     = Mailbox{MsgAddress: 0x03B1051C, RspAddress: 0x03B10568, ArgAddress: 0x03B10590}
	mailboxZenApu  = Mailbox{MsgAddress: 0x03B10A20, RspAddress: 0x03B10A80, ArgAddress: 0x03B10A88}
	mailboxZen2    = Mailbox{MsgAddress: 0x03B10524, RspAddress: 0x03B10570, ArgAddress: 0x03B10A40}
	mailboxZen4    = Mailbox{MsgAddress: 0x03B10530, RspAddress: 0x03B1057C, ArgAddress: 0x03B109C4}
)

// Message-ID tables by firmware generation. Reverse engineered; an absent
// operation means the firmware has no such command and callers get an
// unsupported-operation error rather than a guessed ID.
var (
	messagesZen = map[Op]uint32{
		OpTestMessage:          0x01,
		OpGetSmuVersion:        0x02,
		OpGetTableVersion:      0x03,
		OpTransferTableToDram:  0x0A,
		OpGetDramBaseAddress:   0x0C,
		OpEnableOcMode:         0x23,
		OpSetFrequencyAllCores: 0x26,
		OpSetPPTLimit:          0x64,
		OpSetTDCLimit:          0x65,
		OpSetEDCLimit:          0x66,
	}
	messagesZenApu = map[Op]uint32{
		OpTestMessage:         0x01,
		OpGetSmuVersion:       0x02,
		OpGetTableVersion:     0x0C,
		OpTransferTableToDram: 0x3D,
		OpGetDramBaseAddress:  0x0B,
		OpEnableOcMode:        0x69,
		OpDisableOcMode:       0x6A,
		OpSetPPTLimit:         0x33,
		OpSetTDCLimit:         0x38,
		OpSetEDCLimit:         0x39,
		OpSetHTCLimit:         0x37,
	}
	messagesZen2 = map[Op]uint32{
		OpTestMessage:          0x01,
		OpGetSmuVersion:        0x02,
		OpGetTableVersion:      0x08,
		OpTransferTableToDram:  0x65,
		OpGetDramBaseAddress:   0x66,
		OpEnableOcMode:         0x5A,
		OpDisableOcMode:        0x5B,
		OpSetFrequencyAllCores: 0x5C,
		OpSetFrequencyPerCore:  0x5D,
		OpSetPPTLimit:          0x53,
		OpSetTDCLimit:          0x54,
		OpSetEDCLimit:          0x55,
		OpSetHTCLimit:          0x56,
		OpSetPBOScalar:         0x58,
		OpGetPBOScalar:         0x6C,
	}
	messagesZen3 = map[Op]uint32{
		OpTestMessage:          0x01,
		OpGetSmuVersion:        0x02,
		OpGetTableVersion:      0x08,
		OpTransferTableToDram:  0x65,
		OpGetDramBaseAddress:   0x66,
		OpEnableOcMode:         0x5A,
		OpDisableOcMode:        0x5B,
		OpSetFrequencyAllCores: 0x5C,
		OpSetFrequencyPerCore:  0x5D,
		OpSetPPTLimit:          0x53,
		OpSetTDCLimit:          0x54,
		OpSetEDCLimit:          0x55,
		OpSetHTCLimit:          0x56,
		OpSetPBOScalar:         0x58,
		OpGetPBOScalar:         0x6C,
		OpGetPsmMargin:         0x48,
		OpSetPsmMargin:         0x4C,
		OpSetPsmMarginAllCores: 0x4D,
	}
	messagesZen4 = map[Op]uint32{
		OpTestMessage:          0x01,
		OpGetSmuVersion:        0x02,
		OpGetTableVersion:      0x05,
		OpTransferTableToDram:  0x03,
		OpGetDramBaseAddress:   0x04,
		OpEnableOcMode:         0x5D,
		OpDisableOcMode:        0x5E,
		OpSetFrequencyAllCores: 0x5F,
		OpSetFrequencyPerCore:  0x60,
		OpSetPPTLimit:          0x56,
		OpSetTDCLimit:          0x57,
		OpSetEDCLimit:          0x58,
		OpSetHTCLimit:          0x59,
		OpSetPBOScalar:         0x5B,
		OpGetPBOScalar:         0x6D,
		OpGetPsmMargin:         0x7C,
		OpSetPsmMargin:         0x53,
		OpSetPsmMarginAllCores: 0x54,
	}
)

func endpoint(codename string, mb Mailbox, messages map[Op]uint32, transferArg, tableVersion uint32, tableSize int) Endpoint {
	return Endpoint{
		Codename:       codename,
		PciAddress:     smnRootComplex,
		AddrPointerReg: smnAddrPointerReg,
		DataPortReg:    smnDataPortReg,
		Mailbox:        mb,
		Messages:       messages,
		TransferArg:    transferArg,
		TableVersion:   tableVersion,
		TableSizeBytes: tableSize,
	}
}

// endpoints maps each supported code name to its SMU configuration.
var endpoints = map[string]Endpoint{
	uarch.CodenameSummitRidge:   endpoint(uarch.CodenameSummitRidge, mailboxZen, messagesZen, 0, 0, 0),
	uarch.CodenamePinnacleRidge: endpoint(uarch.CodenamePinnacleRidge, mailboxZen, messagesZen, 0, 0, 0),
	uarch.CodenameWhitehaven:    endpoint(uarch.CodenameWhitehaven, mailboxZen, messagesZen, 0, 0, 0),
	uarch.CodenameColfax:        endpoint(uarch.CodenameColfax, mailboxZen, messagesZen, 0, 0, 0),
	uarch.CodenameNaples:        endpoint(uarch.CodenameNaples, mailboxZen, messagesZen, 0, 0, 0),
	uarch.CodenameRavenRidge:    endpoint(uarch.CodenameRavenRidge, mailboxZenApu, messagesZenApu, 3, 0x001E0004, 0x608),
	uarch.CodenamePicasso:       endpoint(uarch.CodenamePicasso, mailboxZenApu, messagesZenApu, 3, 0x001E0005, 0x608),
	uarch.CodenameDali:          endpoint(uarch.CodenameDali, mailboxZenApu, messagesZenApu, 3, 0x001E0005, 0x608),
	uarch.CodenameFireFlight:    endpoint(uarch.CodenameFireFlight, mailboxZenApu, messagesZenApu, 3, 0, 0),
	uarch.CodenameMatisse:       endpoint(uarch.CodenameMatisse, mailboxZen2, messagesZen2, 0, 0x00240903, 0x7E4),
	uarch.CodenameCastlePeak:    endpoint(uarch.CodenameCastlePeak, mailboxZen2, messagesZen2, 0, 0x00240903, 0x7E4),
	uarch.CodenameRome:          endpoint(uarch.CodenameRome, mailboxZen2, messagesZen2, 0, 0x00240903, 0x7E4),
	uarch.CodenameRenoir:        endpoint(uarch.CodenameRenoir, mailboxZenApu, messagesZenApu, 3, 0x00370005, 0x794),
	uarch.CodenameLucienne:      endpoint(uarch.CodenameLucienne, mailboxZenApu, messagesZenApu, 3, 0x00370005, 0x794),
	uarch.CodenameVermeer:       endpoint(uarch.CodenameVermeer, mailboxZen2, messagesZen3, 0, 0x002D0903, 0x948),
	uarch.CodenameChagall:       endpoint(uarch.CodenameChagall, mailboxZen2, messagesZen3, 0, 0x002D0903, 0x948),
	uarch.CodenameMilan:         endpoint(uarch.CodenameMilan, mailboxZen2, messagesZen3, 0, 0x002D0903, 0x948),
	uarch.CodenameCezanne:       endpoint(uarch.CodenameCezanne, mailboxZenApu, messagesZenApu, 3, 0x00400005, 0x944),
	uarch.CodenameRembrandt:     endpoint(uarch.CodenameRembrandt, mailboxZenApu, messagesZenApu, 3, 0x00450004, 0xAA8),
	uarch.CodenameRaphael:       endpoint(uarch.CodenameRaphael, mailboxZen4, messagesZen4, 0, 0x00540004, 0x948),
	uarch.CodenameDragonRange:   endpoint(uarch.CodenameDragonRange, mailboxZen4, messagesZen4, 0, 0x00540004, 0x948),
	uarch.CodenameGenoa:         endpoint(uarch.CodenameGenoa, mailboxZen4, messagesZen4, 0, 0x00540100, 0x4C8),
	uarch.CodenameStormPeak:     endpoint(uarch.CodenameStormPeak, mailboxZen4, messagesZen4, 0, 0x00540101, 0x4C8),
	uarch.CodenameGraniteRidge:  endpoint(uarch.CodenameGraniteRidge, mailboxZen4, messagesZen4, 0, 0x00620105, 0x948),
}

// LookupEndpoint returns the SMU configuration for a code name.
func LookupEndpoint(codename string) (Endpoint, error) {
	ep, ok := endpoints[codename]
	if !ok {
		return Endpoint{}, fmt.Errorf("no SMU endpoint configuration for code name %q", codename)
	}
	// Hand out an independent message map so callers cannot mutate the
	// shared table.
	messages := make(map[Op]uint32, len(ep.Messages))
	for op, id := range ep.Messages {
		messages[op] = id
	}
	ep.Messages = messages
	return ep, nil
}

// endpointOverride is one entry of the optional endpoint override file.
// Overrides exist for firmware revisions that renumber mailbox commands
// ahead of this table being updated.
type endpointOverride struct {
	Codename       string            `yaml:"codename"`
	Messages       map[string]uint32 `yaml:"messages"`
	TableVersion   uint32            `yaml:"tableversion"`
	TableSizeBytes int               `yaml:"tablesize"`
}

// LoadEndpointOverrides reads a YAML override file and applies it to the
// endpoint table for the remainder of the process.
func LoadEndpointOverrides(path string) error {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return errors.Wrap(err, "failed to read endpoint override file")
	}
	var overrides []endpointOverride
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return errors.Wrap(err, "failed to parse endpoint override file")
	}
	for _, ov := range overrides {
		ep, ok := endpoints[ov.Codename]
		if !ok {
			return fmt.Errorf("override references unknown code name %q", ov.Codename)
		}
		messages := make(map[Op]uint32, len(ep.Messages))
		for op, id := range ep.Messages {
			messages[op] = id
		}
		for name, id := range ov.Messages {
			messages[Op(name)] = id
		}
		ep.Messages = messages
		if ov.TableVersion != 0 {
			ep.TableVersion = ov.TableVersion
		}
		if ov.TableSizeBytes != 0 {
			ep.TableSizeBytes = ov.TableSizeBytes
		}
		endpoints[ov.Codename] = ep
	}
	return nil
}
