// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// ldscope - LD19 LiDAR Serial Protocol Analyzer
//
// A CLI tool for monitoring, decoding, recording and republishing the
// LD19 LiDAR serial stream.

package main

import (
	"os"

	"github.com/Thermoquad/ldscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
