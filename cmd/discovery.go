// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/Thermoquad/ldscope/pkg/ld19"
)

var (
	discoveryTimeout int
	discoveryFrames  int
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Find serial ports carrying an LD19 stream",
	Long: `Listen on serial ports for valid LD19 frames.

The sensor transmits continuously without being asked, so discovery is
passive: each port is opened at the configured baud rate and watched until
--frames valid measurement frames arrive or --timeout expires.

With --port only that port is watched; otherwise every port reported by the
system is tried in turn.

Examples:
  ldscope discovery
  ldscope discovery --port /dev/ttyUSB0 --baud 230400

Exit codes:
  0 - Discovery successful (at least one sensor found)
  1 - Discovery failed (no sensor on any port)
  2 - Port enumeration error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 2, "Seconds to listen on each port")
	discoveryCmd.Flags().IntVar(&discoveryFrames, "frames", 10, "Valid frames needed to identify a sensor")
}

// discoveryPort is a candidate port with the USB details the system reports
type discoveryPort struct {
	name    string
	product string
	usbID   string
}

// discoveryResult is what a port produced while it was watched
type discoveryResult struct {
	port     discoveryPort
	snapshot ld19.Snapshot
	rpm      float64
	err      error
}

func (r discoveryResult) found() bool {
	return r.err == nil && r.snapshot.MeasurementFrames > 0
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ports, err := discoveryPorts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Enumeration error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("ldscope - Sensor Discovery\n")
	fmt.Printf("Baud rate: %d\n", baudRate)
	fmt.Printf("Timeout: %d seconds per port\n\n", discoveryTimeout)

	if len(ports) == 0 {
		fmt.Printf("No serial ports found\n")
		os.Exit(1)
	}

	found := 0
	for _, p := range ports {
		fmt.Printf("Probing %s", p.name)
		if p.product != "" || p.usbID != "" {
			fmt.Printf(" (%s %s)", p.usbID, p.product)
		}
		fmt.Printf("... ")

		result := watchPort(p)
		switch {
		case result.err != nil:
			fmt.Printf("ERROR: %v\n", result.err)
		case result.found():
			found++
			fmt.Printf("LD19 FOUND\n")
			fmt.Printf("  Measurement frames: %d\n", result.snapshot.MeasurementFrames)
			fmt.Printf("  Health frames: %d\n", result.snapshot.HealthFrames)
			fmt.Printf("  CRC errors: %d\n", result.snapshot.CRCErrors)
			fmt.Printf("  Speed: %.1f RPM\n", result.rpm)
		case result.snapshot.Bytes > 0:
			fmt.Printf("data but no valid frames (%d bytes, %d CRC errors)\n",
				result.snapshot.Bytes, result.snapshot.CRCErrors)
		default:
			fmt.Printf("silent\n")
		}
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Ports checked: %d\n", len(ports))
	fmt.Printf("Sensors found: %d\n", found)

	if found == 0 {
		fmt.Printf("No sensor found. Check wiring, power and baud rate.\n")
		os.Exit(1)
	}
	return nil
}

func discoveryPorts() ([]discoveryPort, error) {
	if portName != "" {
		return []discoveryPort{{name: portName}}, nil
	}

	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]discoveryPort, 0, len(details))
	for _, d := range details {
		p := discoveryPort{name: d.Name}
		if d.IsUSB {
			p.usbID = fmt.Sprintf("%s:%s", d.VID, d.PID)
			p.product = d.Product
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func watchPort(p discoveryPort) discoveryResult {
	result := discoveryResult{port: p}

	conn, err := OpenSerialConnection(p.name, baudRate)
	if err != nil {
		result.err = err
		return result
	}
	defer conn.Close()

	serialConn := conn.(*SerialConnection)
	if err := serialConn.SetReadTimeout(100 * time.Millisecond); err != nil {
		result.err = err
		return result
	}

	receiver := ld19.NewReceiver(nil)
	deadline := time.Now().Add(time.Duration(discoveryTimeout) * time.Second)
	buf := make([]byte, ld19.MaxFrameSize)

	for time.Now().Before(deadline) {
		n, err := serialConn.Read(buf)
		if err != nil {
			result.err = err
			break
		}
		receiver.Write(buf[:n])
		if receiver.Statistics().Snapshot().MeasurementFrames >= uint64(discoveryFrames) {
			break
		}
	}

	result.snapshot = receiver.Statistics().Snapshot()
	if rec, ok := receiver.Publisher().Latest(); ok {
		result.rpm = rec.RPM()
	}
	return result
}
