// Package debuglog records finished runs for inspection: the exact prompt sent to the
// model (every turn plus the advertised tools) and the model's full output. It
// implements reactor.SnapshotSink for a file or any io.Writer.
package debuglog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skosovsky/reactor"
)

// Defaults for FileSink.
const (
	DefaultOutputDir = "./"
	DefaultFilename  = "debug_output.txt"
)

const (
	header = "\n========== PROMPT DEBUG OUTPUT ==========\n"
	footer = "==========================================\n"
)

// Format renders snap as a plain-text debug report.
func Format(snap reactor.Snapshot) string {
	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "Timestamp: %s\n", timestamp(snap))
	if snap.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", snap.RunID)
	}
	fmt.Fprintf(&b, "Reason: %s after %d iteration(s)\n", snap.Reason, snap.Iterations)

	b.WriteString("\n=== EXACT PROMPT ===\n")
	b.WriteString(FormatTurns(snap.Turns))
	if len(snap.Tools) > 0 {
		b.WriteString("\n\n=== Available Functions ===\n")
		data, err := json.MarshalIndent(snap.Tools, "", "  ")
		if err != nil {
			fmt.Fprintf(&b, "(could not encode tools: %v)", err)
		} else {
			b.Write(data)
		}
	}
	b.WriteString("\n")

	b.WriteString("\n=== MODEL RESPONSE ===\n")
	b.WriteString(snap.Transcript)
	b.WriteString("\n")
	if snap.FinalAnswer != "" {
		fmt.Fprintf(&b, "\nFinal answer: %s\n", snap.FinalAnswer)
	}
	if len(snap.Tools) > 0 {
		fmt.Fprintf(&b, "\nFunctions: %d available\n", len(snap.Tools))
	}
	if snap.Usage.TotalTokens > 0 {
		fmt.Fprintf(&b, "Tokens: %d prompt, %d completion, %d total\n",
			snap.Usage.PromptTokens, snap.Usage.CompletionTokens, snap.Usage.TotalTokens)
	}
	b.WriteString(footer)
	return b.String()
}

// FormatTurns renders turns as "=== ROLE ===" sections.
func FormatTurns(turns []reactor.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		role := strings.ToUpper(string(t.Role))
		if role == "" {
			role = "UNKNOWN"
		}
		if t.Role == reactor.RoleTool && t.ToolName != "" {
			role += " " + t.ToolName
		}
		fmt.Fprintf(&b, "\n=== %s ===\n%s\n", role, t.Content)
		for _, c := range t.ToolCalls {
			fmt.Fprintf(&b, "-> %s(%s)\n", c.ToolName, c.Args)
		}
	}
	return b.String()
}

func timestamp(snap reactor.Snapshot) string {
	if snap.FinishedAt.IsZero() {
		return "N/A"
	}
	return snap.FinishedAt.Format(time.RFC3339Nano)
}

// WriterSink writes every snapshot to an io.Writer, e.g. os.Stderr.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink that writes to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Record implements reactor.SnapshotSink.
func (s *WriterSink) Record(_ context.Context, snap reactor.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, Format(snap))
	return err
}

// FileSink writes snapshots to a file under OutputDir.
type FileSink struct {
	dir, filename    string
	includeTimestamp bool
	appendMode       bool
	now              func() time.Time
	logger           zerolog.Logger

	mu sync.Mutex
}

// Option configures a FileSink.
type Option func(*FileSink)

// WithOutputDir sets the directory files are written to. It is created if missing.
func WithOutputDir(dir string) Option {
	return func(s *FileSink) {
		if dir != "" {
			s.dir = dir
		}
	}
}

// WithFilename sets the file name.
func WithFilename(name string) Option {
	return func(s *FileSink) {
		if name != "" {
			s.filename = name
		}
	}
}

// WithTimestamp writes each snapshot to its own file, "<base>_<time><ext>".
func WithTimestamp(enable bool) Option {
	return func(s *FileSink) { s.includeTimestamp = enable }
}

// WithAppend appends to the file instead of truncating it.
func WithAppend(enable bool) Option {
	return func(s *FileSink) { s.appendMode = enable }
}

// WithClock replaces time.Now for timestamped file names.
func WithClock(now func() time.Time) Option {
	return func(s *FileSink) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger logs the path of each written file at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *FileSink) { s.logger = logger }
}

// NewFileSink creates the output directory and returns the sink.
func NewFileSink(opts ...Option) (*FileSink, error) {
	s := &FileSink{
		dir:      DefaultOutputDir,
		filename: DefaultFilename,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug output dir: %w", err)
	}
	return s, nil
}

// Record implements reactor.SnapshotSink.
func (s *FileSink) Record(_ context.Context, snap reactor.Snapshot) error {
	_, err := s.Write(snap)
	return err
}

// Write formats snap into the sink's file and returns the file path.
func (s *FileSink) Write(snap reactor.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dir, s.name())
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if s.appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return "", fmt.Errorf("open debug output: %w", err)
	}
	if _, err := io.WriteString(f, Format(snap)); err != nil {
		f.Close()
		return "", fmt.Errorf("write debug output: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write debug output: %w", err)
	}
	s.logger.Debug().Str("path", path).Str("run_id", snap.RunID).Msg("prompt debug output written")
	return path, nil
}

func (s *FileSink) name() string {
	if !s.includeTimestamp {
		return s.filename
	}
	ts := s.now().Format("2006-01-02T15:04:05.000000")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	ext := filepath.Ext(s.filename)
	base := strings.TrimSuffix(s.filename, ext)
	return base + "_" + ts + ext
}

var (
	_ reactor.SnapshotSink = (*FileSink)(nil)
	_ reactor.SnapshotSink = (*WriterSink)(nil)
)
