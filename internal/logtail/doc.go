// Package logtail reads the tail of the vrcpulse log file.
//
// The log file holds one zerolog JSON object per line. Read returns the
// last N lines using a ring buffer of N entries, so memory does not grow
// with the file. Filter narrows lines by level and component, and Render
// pretty-prints them with zerolog's console writer.
//
// Lines that are not JSON (a panic trace, a hand edit) pass through
// Filter and Render unchanged.
package logtail
