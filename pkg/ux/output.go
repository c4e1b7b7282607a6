// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides styled terminal output for the Sports-See CLI.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Sports-See color palette - hardwood oranges and scoreboard amber
var (
	// Primary palette (brightest to darkest)
	ColorCourtBright  = lipgloss.Color("#FFA552") // Bright orange - highlights
	ColorCourtPrimary = lipgloss.Color("#F28C28") // Primary orange - main brand color
	ColorCourtRim     = lipgloss.Color("#E2711D") // Rim orange - interactive elements
	ColorCourtDeep    = lipgloss.Color("#C25E0A") // Deep orange - borders, accents

	// Dark palette (for muted elements)
	ColorHardwood = lipgloss.Color("#8A5A3B") // Hardwood brown
	ColorBaseline = lipgloss.Color("#4A3728") // Baseline - muted text, borders

	// Semantic colors (standard conventions for clarity)
	ColorSuccess = lipgloss.Color("#58B368") // Scoreboard green for success
	ColorWarning = lipgloss.Color("#F4D03F") // Gold/amber for warnings
	ColorError   = lipgloss.Color("#E74C3C") // Red for errors
	ColorMuted   = lipgloss.Color("#8A8178") // Warm gray for muted text
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Answer    lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorCourtBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorCourtPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorCourtBright).Bold(true),
	Answer:    lipgloss.NewStyle().Foreground(ColorCourtPrimary),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorCourtDeep).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconHoop    Icon = "◎"
)

// Render returns the icon with its semantic styling applied.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Title prints a styled title line.
func Title(text string) {
	if CurrentMode() == ModePlain {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with a checkmark.
func Success(text string) {
	if CurrentMode() == ModePlain {
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message.
func Warning(text string) {
	if CurrentMode() == ModePlain {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message.
func Error(text string) {
	if CurrentMode() == ModePlain {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message.
func Info(text string) {
	if CurrentMode() == ModePlain {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text. Suppressed in plain mode.
func Muted(text string) {
	if CurrentMode() == ModePlain {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Answer prints generated answer text. Plain mode emits it raw so piped
// output carries nothing but the answer.
func Answer(text string) {
	if CurrentMode() == ModePlain {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Answer.Render(text))
}

// Box prints content in a rounded box with a title line.
func Box(title, content string) {
	if CurrentMode() == ModePlain {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(72)
	titleLine := Styles.Title.Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}

// Status prints one named check with an ok/failed indicator and detail.
func Status(ok bool, name, detail string) {
	if CurrentMode() == ModePlain {
		state := "ok"
		if !ok {
			state = "failed"
		}
		fmt.Printf("%s\t%s\t%s\n", state, name, detail)
		return
	}
	icon := IconSuccess
	if !ok {
		icon = IconError
	}
	if detail != "" {
		fmt.Printf("%s %-20s %s\n", icon.Render(), name, Styles.Muted.Render(detail))
		return
	}
	fmt.Printf("%s %s\n", icon.Render(), name)
}

// Summary prints ingestion counts on one line.
func Summary(indexed, skipped, total int) {
	if CurrentMode() == ModePlain {
		fmt.Printf("SUMMARY: indexed=%d skipped=%d total=%d\n", indexed, skipped, total)
		return
	}
	fmt.Printf("\n%s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", indexed)), Styles.Muted.Render("indexed"),
		Styles.Warning.Render(fmt.Sprintf("%d", skipped)), Styles.Muted.Render("skipped"),
		Styles.Bold.Render(fmt.Sprintf("%d", total)), Styles.Muted.Render("total"),
	)
}
