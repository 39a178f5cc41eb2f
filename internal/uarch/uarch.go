// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

// Package uarch resolves AMD Zen-family silicon identity: it maps the raw
// (family, model, package type) tuple from CPUID to a microarchitecture code
// name, and maps a code name to the SVI2 telemetry plane addresses for the
// core and SoC power rails.
package uarch

// Code name constants. Values are the marketing/engineering code names as
// commonly used in AMD documentation and firmware tooling.
const (
	CodenameUnsupported   = "Unsupported"
	CodenameSummitRidge   = "SummitRidge"
	CodenameWhitehaven    = "Whitehaven"
	CodenameNaples        = "Naples"
	CodenameRavenRidge    = "RavenRidge"
	CodenamePinnacleRidge = "PinnacleRidge"
	CodenameColfax        = "Colfax"
	CodenamePicasso       = "Picasso"
	CodenameFireFlight    = "FireFlight"
	CodenameDali          = "Dali"
	CodenameMatisse       = "Matisse"
	CodenameCastlePeak    = "CastlePeak"
	CodenameRome          = "Rome"
	CodenameRenoir        = "Renoir"
	CodenameLucienne      = "Lucienne"
	CodenameVanGogh       = "VanGogh"
	CodenameVermeer       = "Vermeer"
	CodenameChagall       = "Chagall"
	CodenameMilan         = "Milan"
	CodenameCezanne       = "Cezanne"
	CodenameRembrandt     = "Rembrandt"
	CodenameRaphael       = "Raphael"
	CodenameDragonRange   = "DragonRange"
	CodenameMendocino     = "Mendocino"
	CodenamePhoenix       = "Phoenix"
	CodenameGenoa         = "Genoa"
	CodenameStormPeak     = "StormPeak"
	CodenameGraniteRidge  = "GraniteRidge"
	CodenameTurin         = "Turin"
)

// PackageType is the physical package identifier from CPUID leaf 0x80000001
// EBX bits [31:28].
type PackageType uint32

const (
	PackageFPx PackageType = 0 // FP5/FP6/FP7 mobile BGA packages
	PackageAM4 PackageType = 2
	PackageAM5 PackageType = 2 // AM5 parts report the same field value as AM4
	PackageSP3 PackageType = 4
	PackageSP5 PackageType = 4
	PackageTRX PackageType = 7 // TR4/TRX4/sTRX4/sWRX8
)

func (p PackageType) String() string {
	switch p {
	case PackageFPx:
		return "FPx"
	case PackageAM4:
		return "AM4/AM5"
	case PackageSP3:
		return "SP3/SP5"
	case PackageTRX:
		return "TRX"
	}
	return "Unknown"
}

// Picasso silicon ships with two incompatible telemetry layouts depending on
// the installed SMU firmware generation. Firmware with a major version byte
// below this threshold reports through the original Raven Ridge layout.
const picassoFirmwareCutoff = 0x25

// anyPackage in a rule matches every package type.
const anyPackage = PackageType(0xff)

// codenameRules is the resolution table, ordered. The first rule whose
// family, model list, and package type all match wins. Models shared across
// server, workstation, and desktop SKUs carry package-type tie-breaks.
var codenameRules = []struct {
	family   uint32
	models   []uint32
	pkg      PackageType
	codename string
}{
	// Family 17h - Zen, Zen+, Zen 2
	{0x17, []uint32{0x1}, PackageSP3, CodenameNaples},
	{0x17, []uint32{0x1}, PackageTRX, CodenameWhitehaven},
	{0x17, []uint32{0x1}, anyPackage, CodenameSummitRidge},
	{0x17, []uint32{0x8}, PackageSP3, CodenameColfax},
	{0x17, []uint32{0x8}, PackageTRX, CodenameColfax},
	{0x17, []uint32{0x8}, anyPackage, CodenamePinnacleRidge},
	{0x17, []uint32{0x11}, anyPackage, CodenameRavenRidge},
	{0x17, []uint32{0x18}, anyPackage, CodenamePicasso}, // firmware tie-break applied in Resolve
	{0x17, []uint32{0x20}, anyPackage, CodenameDali},
	{0x17, []uint32{0x31}, PackageTRX, CodenameCastlePeak},
	{0x17, []uint32{0x31}, anyPackage, CodenameRome},
	{0x17, []uint32{0x50}, anyPackage, CodenameFireFlight},
	{0x17, []uint32{0x60}, anyPackage, CodenameRenoir},
	{0x17, []uint32{0x68}, anyPackage, CodenameLucienne},
	{0x17, []uint32{0x71}, anyPackage, CodenameMatisse},
	{0x17, []uint32{0x90}, anyPackage, CodenameVanGogh},
	{0x17, []uint32{0xa0}, anyPackage, CodenameMendocino},
	// Family 19h - Zen 3, Zen 4
	{0x19, []uint32{0x0, 0x1}, anyPackage, CodenameMilan},
	{0x19, []uint32{0x8}, anyPackage, CodenameChagall},
	{0x19, []uint32{0x10, 0x11}, anyPackage, CodenameGenoa},
	{0x19, []uint32{0x18}, anyPackage, CodenameStormPeak},
	{0x19, []uint32{0x20, 0x21}, anyPackage, CodenameVermeer},
	{0x19, []uint32{0x40, 0x44}, anyPackage, CodenameRembrandt},
	{0x19, []uint32{0x50}, anyPackage, CodenameCezanne},
	{0x19, []uint32{0x61}, PackageFPx, CodenameDragonRange},
	{0x19, []uint32{0x61}, anyPackage, CodenameRaphael},
	{0x19, []uint32{0x74, 0x75, 0x78}, anyPackage, CodenamePhoenix},
	// Family 1Ah - Zen 5
	{0x1a, []uint32{0x2, 0x10, 0x11}, anyPackage, CodenameTurin},
	{0x1a, []uint32{0x44}, anyPackage, CodenameGraniteRidge},
}

// Resolve maps silicon identity to a microarchitecture code name. The
// firmware version high byte participates for exactly one model: Picasso
// parts running pre-0x25 SMU firmware expose the Raven Ridge telemetry
// layout and are reported as RavenRidge. Unmatched tuples resolve to
// CodenameUnsupported.
func Resolve(family, model uint32, pkg PackageType, smuVersionHighByte uint32) string {
	for _, rule := range codenameRules {
		if rule.family != family {
			continue
		}
		if !containsModel(rule.models, model) {
			continue
		}
		if rule.pkg != anyPackage && rule.pkg != pkg {
			continue
		}
		if rule.codename == CodenamePicasso && smuVersionHighByte != 0 && smuVersionHighByte < picassoFirmwareCutoff {
			return CodenameRavenRidge
		}
		return rule.codename
	}
	return CodenameUnsupported
}

func containsModel(models []uint32, model uint32) bool {
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}

// IsAPU reports whether the code name is an APU part. APUs use the
// monolithic-die mailbox addresses and table layouts.
func IsAPU(codename string) bool {
	switch codename {
	case CodenameRavenRidge, CodenamePicasso, CodenameDali, CodenameFireFlight,
		CodenameRenoir, CodenameLucienne, CodenameVanGogh, CodenameCezanne,
		CodenameRembrandt, CodenameMendocino, CodenamePhoenix:
		return true
	}
	return false
}
