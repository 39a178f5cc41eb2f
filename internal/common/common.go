// Package common holds the application context shared by the command line
// interface and the helper for opening a controller against local hardware.
package common

// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"

	"github.com/Kagashini/ZenStates-Core/internal/driver"
	"github.com/Kagashini/ZenStates-Core/internal/smu"
	"github.com/Kagashini/ZenStates-Core/internal/util"
	"github.com/Kagashini/ZenStates-Core/internal/zen"
)

// AppName is the name of the application
const AppName = "zenstates"

// AppContext represents the application context that can be accessed from
// all commands.
type AppContext struct {
	Timestamp         string
	LogFilePath       string
	Version           string
	EndpointOverrides string
	Debug             bool
}

// OpenController applies the optional SMU endpoint override file, opens the
// local register bridge, and runs controller initialization. The caller owns
// the returned controller and must Close it.
func OpenController(appContext AppContext) (*zen.Controller, error) {
	if appContext.EndpointOverrides != "" {
		path, err := util.AbsPath(appContext.EndpointOverrides)
		if err != nil {
			return nil, err
		}
		if err := smu.LoadEndpointOverrides(path); err != nil {
			return nil, err
		}
		slog.Info("applied SMU endpoint overrides", slog.String("path", path))
	}
	bridge, err := driver.NewLinuxBridge()
	if err != nil {
		return nil, err
	}
	controller, err := zen.New(bridge)
	if err != nil {
		if closeErr := bridge.Close(); closeErr != nil {
			slog.Error("error closing register bridge", slog.String("error", closeErr.Error()))
		}
		return nil, err
	}
	if controller.Status() != zen.StatusOK {
		slog.Warn("controller initialized with degraded state", slog.String("error", controller.LastError().Error()))
	}
	return controller, nil
}
