// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/Kagashini/ZenStates-Core/cmd"
)

func main() {
	// profile only if the environment variable is set
	if os.Getenv("ZENSTATES_PROFILE") != "" {
		cpuFile, err := os.Create("cpu.prof")
		if err != nil {
			panic(err)
		}
		defer cpuFile.Close()

		if err := pprof.StartCPUProfile(cpuFile); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
		defer fmt.Println("Profiling data written to cpu.prof")
	}
	cmd.Execute()
}
