// Package ui holds the styled output shared by pilot's one-shot commands:
// the neon palette, status symbols, a spinner for blocking steps, text
// sparklines, tables and the ssh_config host picker used by pilot init.
//
// The full-screen dashboard lives in package monitor and has its own styles
// built on the same palette.
//
// Use DisableColors for --no-color, NO_COLOR and piped output.
package ui
