package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Entry is one line of the JSON application log.
type Entry struct {
	Time    string
	Level   zapcore.Level
	Logger  string
	Message string
	Fields  map[string]any
	// Raw holds the line as read when it was not a JSON object.
	Raw string
}

// Keys written by the production zap encoder.
var reservedKeys = map[string]bool{
	"ts": true, "level": true, "logger": true, "msg": true, "caller": true, "stacktrace": true,
}

// Tail returns the last maxLines lines of the file at path. A missing file
// yields no lines.
func Tail(path string, maxLines int) ([]string, error) {
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

	if count < maxLines {
		return append([]string(nil), ring[:count]...), nil
	}
	lines := make([]string, count)
	for i := range lines {
		lines[i] = ring[(idx+i)%maxLines]
	}
	return lines, nil
}

// Parse decodes one log line. Lines that are not JSON objects come back with
// only Raw set and an info level.
func Parse(line string) Entry {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return Entry{Raw: line, Level: zapcore.InfoLevel}
	}
	e := Entry{Level: zapcore.InfoLevel}
	e.Time, _ = obj["ts"].(string)
	e.Logger, _ = obj["logger"].(string)
	e.Message, _ = obj["msg"].(string)
	if lvl, ok := obj["level"].(string); ok {
		_ = e.Level.UnmarshalText([]byte(lvl))
	}
	for k, v := range obj {
		if reservedKeys[k] {
			continue
		}
		if e.Fields == nil {
			e.Fields = map[string]any{}
		}
		e.Fields[k] = v
	}
	return e
}

// Read returns parsed entries from the last maxLines lines that are at or
// above minLevel.
func Read(path string, maxLines int, minLevel zapcore.Level) ([]Entry, error) {
	lines, err := Tail(path, maxLines)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		e := Parse(l)
		if e.Level < minLevel {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Format renders an entry on one line: time, level, logger, message and the
// remaining fields sorted by key.
func (e Entry) Format() string {
	if e.Raw != "" {
		return e.Raw
	}
	var b strings.Builder
	if e.Time != "" {
		b.WriteString(e.Time)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", e.Level.CapitalString())
	if e.Logger != "" {
		b.WriteString(e.Logger)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := e.Fields[k]
		if s, ok := v.(string); ok {
			fmt.Fprintf(&b, " %s=%s", k, s)
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			fmt.Fprintf(&b, " %s=%v", k, v)
			continue
		}
		fmt.Fprintf(&b, " %s=%s", k, raw)
	}
	return b.String()
}
