/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/vidar_player/internal/library"
)

var listVideoDir string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the playable videos in the library",
	Long: `List the videos the player can be asked for, as the names the /play
command expects (paths relative to the video directory).

Examples:
  # List videos in the configured directory
  vidarplayer list

  # List videos in a specific directory
  vidarplayer list --video-dir /media/videos
`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listVideoDir, "video-dir", "", "Directory holding the video library")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(""); err != nil {
		return err
	}
	if cmd.Flags().Changed("video-dir") {
		cfg.VideoDir = listVideoDir
	}
	closeLog, err := setupLogging(nil)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer func() { _ = closeLog() }()

	lib, err := library.New(cfg.VideoDir, logger)
	if err != nil {
		return err
	}
	names, err := lib.List()
	if err != nil {
		return fmt.Errorf("scan library: %w", err)
	}

	for _, name := range names {
		fmt.Println(name)
	}
	fmt.Printf("\n%d video(s) in %s\n", len(names), lib.Root())
	return nil
}
