package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf16"

	"go.uber.org/zap"
)

// DefaultPath is the audit log location relative to the project root.
const DefaultPath = ".council/healing_log.jsonl"

// Log appends entries to a newline-delimited JSON file. The mutex only
// serialises writers inside one process.
type Log struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewLog creates a log writing to path.
func NewLog(path string, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{path: path, logger: logger}
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes entry as one line.
func (l *Log) Append(entry Entry) error {
	line, err := encode(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create audit log directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}

	l.logger.Debug("audit entry written",
		zap.String("proposal_id", entry.ProposalID),
		zap.String("status", string(entry.ApprovalStatus)))
	return nil
}

// encode renders entry as ASCII-only JSON followed by a newline.
func encode(entry Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entry); err != nil {
		return nil, err
	}
	return escapeNonASCII(buf.Bytes()), nil
}

// escapeNonASCII rewrites every rune above 0x7f as a \uXXXX escape, using
// surrogate pairs outside the BMP. Non-ASCII bytes only occur inside JSON
// strings, so the result is still valid JSON.
func escapeNonASCII(b []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(b))
	for _, r := range string(b) {
		if r < 0x80 {
			out.WriteRune(r)
			continue
		}
		if r > 0xffff {
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, hi, lo)
			continue
		}
		fmt.Fprintf(&out, `\u%04x`, r)
	}
	return out.Bytes()
}

// ReadEntries returns every complete entry in the log at path. A final
// line cut short by an interrupted write is skipped. A missing file yields
// no entries.
func ReadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			last := !bytes.HasSuffix(data, []byte("\n")) && lineNo == bytes.Count(data, []byte("\n"))+1
			if last {
				break
			}
			return entries, fmt.Errorf("parse audit log line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("scan audit log: %w", err)
	}
	return entries, nil
}

// Tail returns at most n of the newest entries, oldest first.
func Tail(entries []Entry, n int) []Entry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
