// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package smu

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kagashini/ZenStates-Core/internal/uarch"
)

func TestLookupEndpoint_Known(t *testing.T) {
	ep, err := LookupEndpoint(uarch.CodenameVermeer)
	require.NoError(t, err)
	assert.Equal(t, uarch.CodenameVermeer, ep.Codename)
	assert.Equal(t, uint32(0xB8), ep.AddrPointerReg)
	assert.Equal(t, uint32(0xBC), ep.DataPortReg)
	assert.NotZero(t, ep.Mailbox.MsgAddress)
	assert.NotZero(t, ep.TableSizeBytes)
}

func TestLookupEndpoint_Unknown(t *testing.T) {
	_, err := LookupEndpoint(uarch.CodenameUnsupported)
	assert.Error(t, err)
	_, err = LookupEndpoint("")
	assert.Error(t, err)
}

func TestLookupEndpoint_CopyIsolation(t *testing.T) {
	ep1, err := LookupEndpoint(uarch.CodenameMatisse)
	require.NoError(t, err)
	ep1.Messages[OpTestMessage] = 0x99

	ep2, err := LookupEndpoint(uarch.CodenameMatisse)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01), ep2.Messages[OpTestMessage])
}

func TestEndpointTable_MandatoryOps(t *testing.T) {
	// Every configured endpoint must at least handshake and report its
	// firmware version.
	for codename := range endpoints {
		ep, err := LookupEndpoint(codename)
		require.NoError(t, err)
		_, ok := ep.MessageID(OpTestMessage)
		assert.True(t, ok, "%s lacks TestMessage", codename)
		_, ok = ep.MessageID(OpGetSmuVersion)
		assert.True(t, ok, "%s lacks GetSmuVersion", codename)
	}
}

func TestSupportedOps(t *testing.T) {
	ep, err := LookupEndpoint(uarch.CodenameVermeer)
	require.NoError(t, err)
	ops := ep.SupportedOps()
	assert.True(t, ops.Contains(OpSetPsmMargin))
	assert.True(t, ops.Contains(OpTransferTableToDram))

	ep, err = LookupEndpoint(uarch.CodenameSummitRidge)
	require.NoError(t, err)
	assert.False(t, ep.SupportedOps().Contains(OpSetPsmMargin))
}

func TestLoadEndpointOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoints.yaml")
	content := `
- codename: Vermeer
  messages:
    TestMessage: 0x2f
  tablesize: 2440
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	original, err := LookupEndpoint(uarch.CodenameVermeer)
	require.NoError(t, err)
	t.Cleanup(func() { endpoints[uarch.CodenameVermeer] = original })

	require.NoError(t, LoadEndpointOverrides(path))

	ep, err := LookupEndpoint(uarch.CodenameVermeer)
	require.NoError(t, err)
	id, ok := ep.MessageID(OpTestMessage)
	require.True(t, ok)
	assert.Equal(t, uint32(0x2f), id)
	assert.Equal(t, 2440, ep.TableSizeBytes)
	// untouched entries survive
	id, ok = ep.MessageID(OpGetSmuVersion)
	require.True(t, ok)
	assert.Equal(t, uint32(0x02), id)
}

func TestLoadEndpointOverrides_UnknownCodename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoints.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- codename: NotACpu\n"), 0644))
	assert.Error(t, LoadEndpointOverrides(path))
}

func TestLoadEndpointOverrides_MissingFile(t *testing.T) {
	assert.Error(t, LoadEndpointOverrides(filepath.Join(t.TempDir(), "nope.yaml")))
}
