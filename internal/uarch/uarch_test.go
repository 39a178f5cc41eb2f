// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package uarch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_ModelSharedAcrossPackages(t *testing.T) {
	tests := []struct {
		name     string
		family   uint32
		model    uint32
		pkg      PackageType
		expected string
	}{
		{"model 1 server", 0x17, 0x1, PackageSP3, CodenameNaples},
		{"model 1 HEDT", 0x17, 0x1, PackageTRX, CodenameWhitehaven},
		{"model 1 desktop", 0x17, 0x1, PackageAM4, CodenameSummitRidge},
		{"model 8 server", 0x17, 0x8, PackageSP3, CodenameColfax},
		{"model 8 HEDT", 0x17, 0x8, PackageTRX, CodenameColfax},
		{"model 8 desktop", 0x17, 0x8, PackageAM4, CodenamePinnacleRidge},
		{"model 31h HEDT", 0x17, 0x31, PackageTRX, CodenameCastlePeak},
		{"model 31h server", 0x17, 0x31, PackageSP3, CodenameRome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(tt.family, tt.model, tt.pkg, 0))
		})
	}
}

func TestResolve_Desktop(t *testing.T) {
	tests := []struct {
		name     string
		family   uint32
		model    uint32
		pkg      PackageType
		expected string
	}{
		{"Matisse", 0x17, 0x71, PackageAM4, CodenameMatisse},
		{"Vermeer", 0x19, 0x21, PackageAM4, CodenameVermeer},
		{"Vermeer model 20h", 0x19, 0x20, PackageAM4, CodenameVermeer},
		{"Cezanne", 0x19, 0x50, PackageFPx, CodenameCezanne},
		{"Raphael", 0x19, 0x61, PackageAM5, CodenameRaphael},
		{"DragonRange", 0x19, 0x61, PackageFPx, CodenameDragonRange},
		{"Milan", 0x19, 0x1, PackageSP3, CodenameMilan},
		{"Genoa", 0x19, 0x11, PackageSP5, CodenameGenoa},
		{"StormPeak", 0x19, 0x18, PackageTRX, CodenameStormPeak},
		{"GraniteRidge", 0x1a, 0x44, PackageAM5, CodenameGraniteRidge},
		{"Turin", 0x1a, 0x2, PackageSP5, CodenameTurin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(tt.family, tt.model, tt.pkg, 0))
		})
	}
}

func TestResolve_PicassoFirmwareTieBreak(t *testing.T) {
	// Picasso silicon on early SMU firmware reports the Raven Ridge layout.
	assert.Equal(t, CodenameRavenRidge, Resolve(0x17, 0x18, PackageAM4, 0x24))
	assert.Equal(t, CodenamePicasso, Resolve(0x17, 0x18, PackageAM4, 0x25))
	assert.Equal(t, CodenamePicasso, Resolve(0x17, 0x18, PackageAM4, 0x2e))
	// No firmware version available yet: keep the table result.
	assert.Equal(t, CodenamePicasso, Resolve(0x17, 0x18, PackageAM4, 0))
}

func TestResolve_Unsupported(t *testing.T) {
	tests := []struct {
		name   string
		family uint32
		model  uint32
	}{
		{"unknown family", 0x15, 0x2},
		{"unknown model in family 17h", 0x17, 0x7f},
		{"unknown model in family 19h", 0x19, 0x7f},
		{"zero identity", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, CodenameUnsupported, Resolve(tt.family, tt.model, PackageAM4, 0))
		})
	}
}

func TestResolve_EveryRuleReachable(t *testing.T) {
	// Every rule in the table must be the winner for at least one input
	// tuple, i.e., no rule is shadowed by an earlier one.
	for _, rule := range codenameRules {
		pkg := rule.pkg
		if pkg == anyPackage {
			// Pick a package no earlier tie-break rule claims.
			pkg = PackageType(0xe)
		}
		got := Resolve(rule.family, rule.models[0], pkg, 0)
		if rule.codename == CodenamePicasso {
			// tie-break path checked separately
			continue
		}
		assert.Equal(t, rule.codename, got, "rule for %s is shadowed", rule.codename)
	}
}

func TestResolveSviAddresses(t *testing.T) {
	tests := []struct {
		name     string
		codename string
		expected SviAddressPair
	}{
		{"Vermeer uses F19H_M21H planes", CodenameVermeer, sviZen3Desktop},
		{"Matisse uses F17H_M70H planes", CodenameMatisse, sviZen2Desktop},
		{"Milan shares Zen3 planes", CodenameMilan, sviZen3Desktop},
		{"SummitRidge desktop default", CodenameSummitRidge, sviZenDesktop},
		{"Naples planes inverted", CodenameNaples, sviZenHedt},
		{"CastlePeak Zen2 server planes", CodenameCastlePeak, sviZen2Server},
		{"Renoir APU planes", CodenameRenoir, sviZen2Apu},
		{"unknown falls back to desktop default", "SomethingNew", sviZenDesktop},
		{"unsupported falls back to desktop default", CodenameUnsupported, sviZenDesktop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveSviAddresses(tt.codename, 0x2e))
		})
	}
}

func TestResolveSviAddresses_PlaneInversion(t *testing.T) {
	desktop := ResolveSviAddresses(CodenameSummitRidge, 0)
	hedt := ResolveSviAddresses(CodenameWhitehaven, 0)
	assert.Equal(t, desktop.Core, hedt.Soc)
	assert.Equal(t, desktop.Soc, hedt.Core)
}

func TestResolveSviAddresses_PicassoFirmware(t *testing.T) {
	early := ResolveSviAddresses(CodenamePicasso, 0x24)
	late := ResolveSviAddresses(CodenamePicasso, 0x25)
	assert.Equal(t, sviZenDesktop, early)
	assert.Equal(t, sviZen2Apu, late)
	assert.NotEqual(t, early, late)
}

func TestResolveSviAddresses_Deterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		assert.Equal(t, ResolveSviAddresses(CodenameVermeer, 0x38), ResolveSviAddresses(CodenameVermeer, 0x38))
	}
}

func TestIsAPU(t *testing.T) {
	assert.True(t, IsAPU(CodenameRenoir))
	assert.True(t, IsAPU(CodenamePicasso))
	assert.False(t, IsAPU(CodenameMatisse))
	assert.False(t, IsAPU(CodenameRome))
}
