// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configSavePath string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the configuration ldscope would run with, after merging defaults,
the --config file, LDSCOPE_* environment variables and connection flags.

With --save the result is written as YAML, ready to pass back with --config.

Examples:
  ldscope config
  ldscope config --port /dev/ttyUSB0 --save ldscope.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().StringVar(&configSavePath, "save", "", "Write the effective config to this file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	// Connection flags were resolved against the file in loadConfig
	cfg.Serial.Port = portName
	cfg.Serial.Baud = baudRate
	cfg.WebSocket.URL = wsURL
	cfg.WebSocket.Username = wsUsername
	cfg.WebSocket.NoSSLVerify = wsNoSSLVerify

	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	source := cfg.Path()
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintf(out, "# Source: %s\n", source)

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	out.Write(data)

	if configSavePath != "" {
		if err := cfg.Save(configSavePath); err != nil {
			return err
		}
		fmt.Fprintf(out, "# Saved to %s\n", cfg.Path())
	}
	return nil
}
