// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live view of the latest scan",
	Long: `Show the most recent measurement record in a terminal UI.

The screen refreshes four times per second from the latest published record:
rotation speed, angular span, distance statistics and all twelve points.
Health and manufacturer info frames appear in the event log.

Keys: 'r' resets statistics, 'q' quits.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	return runTUIMode("LDSCOPE - LIVE MONITOR", conn, connInfo, true)
}
