// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ldscope/internal/scanserver"
	"github.com/Thermoquad/ldscope/pkg/ld19"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve decoded records to WebSocket clients",
	Long: `Decode the sensor stream and broadcast every measurement record as JSON.

Endpoints:
  /ws           WebSocket, one JSON record per text message
  /api/latest   most recent record
  /api/stats    decoder statistics

The listen address comes from --listen, config server.listen_addr or
LDSCOPE_LISTEN_ADDR.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	listen := serveListen
	if listen == "" {
		listen = cfg.Server.ListenAddr
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	receiver := ld19.NewReceiver(nil)
	server := scanserver.New(receiver.Publisher(), receiver.Statistics())
	receiver.Publisher().RegisterHandler(server.Handler())

	fmt.Printf("ldscope - Scan Server\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Listening: %s\n", listen)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(ctx, listen)
	}()

	go func() {
		pumpConnection(ctx, conn, receiver, nil)
		stop()
	}()

	select {
	case err := <-serverErr:
		conn.Close()
		return err
	case <-ctx.Done():
	}

	// Unblock the pending read
	conn.Close()
	if err := <-serverErr; err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(receiver.Statistics().Snapshot().String())
	return nil
}
