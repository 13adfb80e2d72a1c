package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Read returns at most maxLines from the end of the file at path. A
// missing file yields no lines and no error.
func Read(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count, idx := 0, 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := range count {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Entry is the part of a zerolog JSON line used for filtering.
type Entry struct {
	Level     string    `json:"level"`
	Time      time.Time `json:"time"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}

// Parse decodes one JSON log line.
func Parse(line string) (Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return Entry{}, fmt.Errorf("parse log line: %w", err)
	}
	return e, nil
}

// Filter keeps lines at or above minLevel, and from component when it is
// non-empty. Lines that are not JSON are kept so nothing is hidden.
func Filter(lines []string, minLevel zerolog.Level, component string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		e, err := Parse(line)
		if err != nil {
			out = append(out, line)
			continue
		}
		level, err := zerolog.ParseLevel(e.Level)
		if err == nil && level < minLevel {
			continue
		}
		if component != "" && e.Component != component {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Render writes lines through a console writer. Non-JSON lines are
// written as-is.
func Render(w io.Writer, lines []string, noColor bool) error {
	console := zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.DateTime}
	for _, line := range lines {
		if _, err := Parse(line); err != nil {
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return err
			}
			continue
		}
		if _, err := console.Write([]byte(line)); err != nil {
			return fmt.Errorf("render log line: %w", err)
		}
	}
	return nil
}
