/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hypebeast/go-osc/osc"
	"github.com/spf13/cobra"
)

var (
	sendHost string
	sendPort int
)

var sendCmd = &cobra.Command{
	Use:   "send <address> [args...]",
	Short: "Send an OSC command to a running player",
	Long: `Send a single OSC message to a Vidar Player instance.

Numeric arguments are sent as OSC integers (or floats when they contain a
decimal point), everything else as strings.

Examples:
  # Start a video on the local player
  vidarplayer send /play intro.mp4

  # Stop playback on a remote player
  vidarplayer send --host 10.0.0.12 /stop

  # Set the volume to 40%
  vidarplayer send /volume_set 40
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendHost, "host", "127.0.0.1", "Player host")
	sendCmd.Flags().IntVar(&sendPort, "port", 8000, "Player OSC port")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	address := args[0]
	if !strings.HasPrefix(address, "/") {
		return fmt.Errorf("OSC address must start with '/': %s", address)
	}

	msg := osc.NewMessage(address)
	for _, arg := range args[1:] {
		msg.Append(parseArgument(arg))
	}

	client := osc.NewClient(sendHost, sendPort)
	if err := client.Send(msg); err != nil {
		return fmt.Errorf("send %s to %s:%d: %w", address, sendHost, sendPort, err)
	}

	fmt.Printf("sent %s to %s:%d\n", address, sendHost, sendPort)
	return nil
}

// parseArgument maps a CLI token onto the closest OSC type.
func parseArgument(arg string) interface{} {
	if n, err := strconv.ParseInt(arg, 10, 32); err == nil {
		return int32(n)
	}
	if strings.Contains(arg, ".") {
		if f, err := strconv.ParseFloat(arg, 32); err == nil {
			return float32(f)
		}
	}
	return arg
}
