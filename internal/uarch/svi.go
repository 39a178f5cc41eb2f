// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package uarch

// SVI2 telemetry plane registers in the SMN address space. The base block is
// shared across Zen generations; which pair of plane offsets carries the
// core and SoC rails varies by silicon revision, and on HEDT/server packages
// the plane assignment is inverted relative to the desktop parts.
const (
	sviBase = 0x0005A000

	sviF17hM01hPlane0 = sviBase + 0x0C
	sviF17hM01hPlane1 = sviBase + 0x10
	sviF17hM30hPlane0 = sviBase + 0x14
	sviF17hM30hPlane1 = sviBase + 0x10
	sviF17hM60hPlane0 = sviBase + 0x38
	sviF17hM60hPlane1 = sviBase + 0x3C
	sviF17hM70hPlane0 = sviBase + 0x10
	sviF17hM70hPlane1 = sviBase + 0x0C
	sviF19hM21hPlane0 = sviBase + 0x10
	sviF19hM21hPlane1 = sviBase + 0x0C
)

// SviAddressPair holds the SMN addresses of the SVI2 telemetry registers for
// the core and SoC voltage rails.
type SviAddressPair struct {
	Core uint32
	Soc  uint32
}

var (
	sviZenDesktop  = SviAddressPair{Core: sviF17hM01hPlane0, Soc: sviF17hM01hPlane1}
	sviZenHedt     = SviAddressPair{Core: sviF17hM01hPlane1, Soc: sviF17hM01hPlane0}
	sviZen2Server  = SviAddressPair{Core: sviF17hM30hPlane0, Soc: sviF17hM30hPlane1}
	sviZen2Apu     = SviAddressPair{Core: sviF17hM60hPlane0, Soc: sviF17hM60hPlane1}
	sviZen2Desktop = SviAddressPair{Core: sviF17hM70hPlane0, Soc: sviF17hM70hPlane1}
	sviZen3Desktop = SviAddressPair{Core: sviF19hM21hPlane0, Soc: sviF19hM21hPlane1}
)

// sviPairs maps each code name to its telemetry pair. Code names absent from
// the map fall back to the Zen/Zen+ desktop default; callers holding an
// unsupported identity get best-effort addresses, not an error.
var sviPairs = map[string]SviAddressPair{
	CodenameSummitRidge:   sviZenDesktop,
	CodenamePinnacleRidge: sviZenDesktop,
	CodenameRavenRidge:    sviZenDesktop,
	CodenameFireFlight:    sviZenDesktop,
	CodenameDali:          sviZenDesktop,
	CodenameWhitehaven:    sviZenHedt,
	CodenameNaples:        sviZenHedt,
	CodenameColfax:        sviZenHedt,
	CodenameCastlePeak:    sviZen2Server,
	CodenameRome:          sviZen2Server,
	CodenameRenoir:        sviZen2Apu,
	CodenameLucienne:      sviZen2Apu,
	CodenameVanGogh:       sviZen2Apu,
	CodenameMendocino:     sviZen2Apu,
	CodenameMatisse:       sviZen2Desktop,
	CodenameVermeer:       sviZen3Desktop,
	CodenameChagall:       sviZen3Desktop,
	CodenameMilan:         sviZen3Desktop,
	CodenameCezanne:       sviZen3Desktop,
}

// ResolveSviAddresses returns the SVI2 telemetry addresses for the code
// name. Picasso additionally consults the already-resolved SMU firmware
// major version: early firmware reports through the Raven Ridge desktop
// planes, later firmware through the Zen 2 APU planes.
func ResolveSviAddresses(codename string, smuVersionHighByte uint32) SviAddressPair {
	if codename == CodenamePicasso {
		if smuVersionHighByte != 0 && smuVersionHighByte < picassoFirmwareCutoff {
			return sviZenDesktop
		}
		return sviZen2Apu
	}
	if pair, ok := sviPairs[codename]; ok {
		return pair
	}
	return sviZenDesktop
}
