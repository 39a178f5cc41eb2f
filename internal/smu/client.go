// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package smu

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kagashini/ZenStates-Core/internal/driver"
)

const (
	// Bound on waiting for the shared PCI configuration bus. Firmware also
	// transacts on this bus; a miss is retryable, not fatal.
	busMutexTimeout = 10 * time.Millisecond

	// Response register poll budget per transaction.
	maxPollRetries = 8192

	// ArgSlots is the argument vector width of the mailbox protocol.
	ArgSlots = 6
)

var (
	// ErrBusTimeout reports that the PCI bus mutex could not be acquired
	// within the bound.
	ErrBusTimeout = errors.New("timed out waiting for PCI bus mutex")

	// ErrResponseTimeout reports that the SMU never signaled completion
	// within the poll budget.
	ErrResponseTimeout = errors.New("timed out waiting for SMU response")

	// ErrUnsupportedOp reports that the endpoint's firmware defines no
	// message ID for the requested operation.
	ErrUnsupportedOp = errors.New("operation not supported by this SMU endpoint")
)

// Args is the outbound/inbound argument vector of one transaction.
type Args [ArgSlots]uint32

// Result carries the response status and the inbound argument vector of a
// completed transaction.
type Result struct {
	Status Status
	Args   Args
}

// OK reports whether the SMU accepted and completed the command.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Client executes mailbox transactions against one SMU endpoint. At most
// one transaction is in flight at a time; the PCI bus mutex enforces this
// across the process and against other bus agents.
type Client struct {
	io driver.RegisterIO
	ep Endpoint
}

// NewClient builds a mailbox client for the endpoint.
func NewClient(io driver.RegisterIO, ep Endpoint) *Client {
	return &Client{io: io, ep: ep}
}

// Endpoint returns the endpoint configuration this client transacts with.
func (c *Client) Endpoint() Endpoint {
	return c.ep
}

// smnRead reads a dword from SMN space. Caller holds the bus mutex.
func (c *Client) smnRead(address uint32) (uint32, error) {
	if err := c.io.WritePciConfig(c.ep.PciAddress, c.ep.AddrPointerReg, address); err != nil {
		return 0, err
	}
	return c.io.ReadPciConfig(c.ep.PciAddress, c.ep.DataPortReg)
}

// smnWrite writes a dword to SMN space. Caller holds the bus mutex.
func (c *Client) smnWrite(address, value uint32) error {
	if err := c.io.WritePciConfig(c.ep.PciAddress, c.ep.AddrPointerReg, address); err != nil {
		return err
	}
	return c.io.WritePciConfig(c.ep.PciAddress, c.ep.DataPortReg, value)
}

// ReadDword reads a dword from SMN space, serialized on the bus mutex.
// Topology fuse reads and telemetry register reads come through here.
func (c *Client) ReadDword(address uint32) (uint32, error) {
	if !c.io.AcquireBusMutex(busMutexTimeout) {
		return 0, ErrBusTimeout
	}
	defer c.io.ReleaseBusMutex()
	return c.smnRead(address)
}

// WriteDword writes a dword to SMN space, serialized on the bus mutex.
func (c *Client) WriteDword(address, value uint32) error {
	if !c.io.AcquireBusMutex(busMutexTimeout) {
		return ErrBusTimeout
	}
	defer c.io.ReleaseBusMutex()
	return c.smnWrite(address, value)
}

// SendCommand executes one mailbox transaction: clear the response
// register, stage the argument words, write the message ID, poll for
// completion, and read back the result arguments. Register I/O failures and
// timeouts return an error; a completed transaction returns the SMU's
// status code in the Result whether or not it is success. The bus mutex is
// released on every path.
func (c *Client) SendCommand(op Op, args Args) (Result, error) {
	msgID, ok := c.ep.MessageID(op)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedOp, op, c.ep.Codename)
	}
	if !c.io.AcquireBusMutex(busMutexTimeout) {
		return Result{}, ErrBusTimeout
	}
	defer c.io.ReleaseBusMutex()

	if err := c.smnWrite(c.ep.Mailbox.RspAddress, 0); err != nil {
		return Result{}, fmt.Errorf("failed to clear response register: %w", err)
	}
	for i, arg := range args {
		if err := c.smnWrite(c.ep.Mailbox.ArgAddress+uint32(i)*4, arg); err != nil {
			return Result{}, fmt.Errorf("failed to stage argument %d: %w", i, err)
		}
	}
	if err := c.smnWrite(c.ep.Mailbox.MsgAddress, msgID); err != nil {
		return Result{}, fmt.Errorf("failed to write message register: %w", err)
	}

	var status uint32
	for retry := 0; retry < maxPollRetries; retry++ {
		v, err := c.smnRead(c.ep.Mailbox.RspAddress)
		if err != nil {
			return Result{}, fmt.Errorf("failed to poll response register: %w", err)
		}
		if v != 0 {
			status = v
			break
		}
	}
	if status == 0 {
		slog.Debug("SMU response poll budget exhausted", slog.String("op", string(op)), slog.String("codename", c.ep.Codename))
		return Result{}, ErrResponseTimeout
	}

	result := Result{Status: Status(status)}
	for i := range result.Args {
		v, err := c.smnRead(c.ep.Mailbox.ArgAddress + uint32(i)*4)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read result argument %d: %w", i, err)
		}
		result.Args[i] = v
	}
	return result, nil
}
