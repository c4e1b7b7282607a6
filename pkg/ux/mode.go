// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

// Mode controls how much styling the output helpers apply.
type Mode string

const (
	// ModeStyled enables colors, icons, and boxes.
	ModeStyled Mode = "styled"

	// ModePlain outputs prefix-tagged plain text suitable for scripting
	// and log capture.
	ModePlain Mode = "plain"
)

var (
	currentMode = ModeStyled
	modeMu      sync.RWMutex
)

// CurrentMode returns the active output mode.
func CurrentMode() Mode {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return currentMode
}

// SetMode overrides the active output mode.
func SetMode(m Mode) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentMode = m
}

// Init picks the output mode from the environment: SPORTSEE_PLAIN forces
// plain output, and anything that is not an interactive terminal falls
// back to plain so piped output stays parseable.
func Init() {
	if os.Getenv("SPORTSEE_PLAIN") != "" {
		SetMode(ModePlain)
		return
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		SetMode(ModePlain)
		return
	}
	SetMode(ModeStyled)
}

// Interactive reports whether prompts and spinners should be shown.
func Interactive() bool {
	return CurrentMode() != ModePlain
}
