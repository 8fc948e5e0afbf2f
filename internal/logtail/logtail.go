package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap/zapcore"
)

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns the whole file. A missing file is not an
// error.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
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
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Entry is one parsed log line.
type Entry struct {
	Time    time.Time
	Level   zapcore.Level
	Caller  string
	Message string
	Fields  string // remaining structured fields, JSON encoded
	Raw     string
	Parsed  bool
}

const timeLayout = "2006-01-02T15:04:05.000Z0700"

// Parse reads a line written by the zap JSON or console encoder. Lines in
// any other shape come back with Parsed unset and the text in Message.
func Parse(line string) Entry {
	entry := Entry{Raw: line, Message: line, Level: zapcore.InfoLevel}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return entry
	}
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		return parseJSON(trimmed, entry)
	}
	return parseConsole(line, entry)
}

func parseJSON(line string, entry Entry) Entry {
	res := gjson.Parse(line)
	level := res.Get("level")
	msg := res.Get("msg")
	if !level.Exists() || !msg.Exists() {
		return entry
	}
	if lvl, err := zapcore.ParseLevel(level.String()); err == nil {
		entry.Level = lvl
	}
	entry.Message = msg.String()
	entry.Caller = res.Get("caller").String()
	if ts, err := time.Parse(timeLayout, res.Get("ts").String()); err == nil {
		entry.Time = ts
	}

	var extra []string
	res.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "level", "ts", "msg", "caller", "stacktrace":
		default:
			extra = append(extra, fmt.Sprintf("%q:%s", key.String(), value.Raw))
		}
		return true
	})
	if len(extra) > 0 {
		entry.Fields = "{" + strings.Join(extra, ",") + "}"
	}
	entry.Parsed = true
	return entry
}

func parseConsole(line string, entry Entry) Entry {
	parts := strings.Split(line, "\t")
	if len(parts) < 3 {
		return entry
	}
	ts, err := time.Parse(timeLayout, parts[0])
	if err != nil {
		return entry
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(parts[1]))
	if err != nil {
		return entry
	}
	entry.Time = ts
	entry.Level = lvl
	rest := parts[2:]
	if len(rest) > 1 && looksLikeCaller(rest[0]) {
		entry.Caller = rest[0]
		rest = rest[1:]
	}
	entry.Message = rest[0]
	if len(rest) > 1 && strings.HasPrefix(rest[len(rest)-1], "{") {
		entry.Fields = rest[len(rest)-1]
		if len(rest) > 2 {
			entry.Message = strings.Join(rest[:len(rest)-1], " ")
		}
	}
	entry.Parsed = true
	return entry
}

func looksLikeCaller(s string) bool {
	i := strings.LastIndex(s, ".go:")
	return i > 0 && !strings.ContainsAny(s, " \t")
}

// Filter keeps entries at or above min. Unparsed lines are kept so that
// panics and other raw output stay visible.
func Filter(entries []Entry, min zapcore.Level) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Parsed || e.Level >= min {
			out = append(out, e)
		}
	}
	return out
}

// Tail reads the last maxLines of path and parses them.
func Tail(path string, maxLines int) ([]Entry, error) {
	lines, err := Read(path, maxLines)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, Parse(line))
	}
	return entries, nil
}
