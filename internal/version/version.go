/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version exposes the build version.
package version

// Version is the current version of Vidar Player.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/vidar_player/internal/version.Version=X.Y.Z
var Version = "1.3.0"
