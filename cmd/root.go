// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/ldscope/internal/config"
	"github.com/Thermoquad/ldscope/pkg/ld19"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Config file
	configPath string
	cfg        = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "ldscope",
	Short: "LD19 LiDAR Serial Protocol Analyzer",
	Long: `ldscope - A CLI tool for monitoring and analyzing the LD19 LiDAR serial stream.

Decodes measurement, health and manufacturer info frames, validates their
checksums, and provides commands for logging, error detection, recording,
replay and republishing of scan data.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 230400]
  WebSocket: --url ws://host/path [--username user]

Settings can also come from a YAML file (--config) and LDSCOPE_* environment
variables. Explicit flags take precedence.

For WebSocket authentication, the password is read from the LDSCOPE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	PersistentPreRunE: loadConfig,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", ld19.DefaultBaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
}

// loadConfig merges the config file and environment into flags the user did
// not set explicitly
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	flags := cmd.Flags()
	if !flags.Changed("port") {
		portName = cfg.Serial.Port
	}
	if !flags.Changed("baud") {
		baudRate = cfg.Serial.Baud
	}
	if !flags.Changed("url") {
		wsURL = cfg.WebSocket.URL
	}
	if !flags.Changed("username") && cfg.WebSocket.Username != "" {
		wsUsername = cfg.WebSocket.Username
	}
	if !flags.Changed("no-ssl-verify") {
		wsNoSSLVerify = cfg.WebSocket.NoSSLVerify
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
