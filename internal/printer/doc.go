// Package printer renders session state for a line-oriented terminal.
//
// Colors come from a small set of Lipgloss themes; relative times use
// go-humanize. Output degrades to plain text when the writer is not a
// terminal.
package printer
