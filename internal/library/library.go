/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library owns the read-only video root: resolving requested names to
// playable paths and enumerating what the device can play.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound    = errors.New("video not found")
	ErrInvalidPath = errors.New("invalid video path")
)

// Library resolves and lists videos under a fixed root directory.
type Library struct {
	root   string
	logger zerolog.Logger
}

// New creates a library over root. The root must exist and be a directory.
func New(root string, logger zerolog.Logger) (*Library, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve video root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("video root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("video root %s is not a directory", abs)
	}
	return &Library{
		root:   abs,
		logger: logger.With().Str("component", "library").Logger(),
	}, nil
}

// Root returns the absolute video root path.
func (l *Library) Root() string {
	return l.root
}

// Resolve maps a requested name to an absolute path inside the root. Names
// that are absolute, empty, or escape the root via parent references are
// rejected before any filesystem access.
func (l *Library) Resolve(name string) (string, error) {
	if name == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}

	full := filepath.Join(l.root, name)
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return "", fmt.Errorf("%w: %q: %v", ErrNotFound, name, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %q is a directory", ErrNotFound, name)
	}
	return full, nil
}

// List returns the root-relative paths of playable files, sorted. Unreadable
// entries are skipped and logged; the walk itself continues.
func (l *Library) List() ([]string, error) {
	var names []string
	err := filepath.Walk(l.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("error accessing path")
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !isVideoFile(info.Name()) {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("failed to get relative path")
			return nil
		}
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk video root: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func isVideoFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mp4", ".mkv", ".avi", ".mov", ".m4v", ".webm", ".mpg", ".mpeg":
		return true
	default:
		return false
	}
}
