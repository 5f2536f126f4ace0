package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/newtron-network/vfd/pkg/util"
)

// Logger defines the interface for audit logging backends
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    int64 // bytes written before the file is rotated; 0 never rotates
	MaxBackups int   // rotated files kept; 0 keeps all
	MaxAgeDays int   // rotated files older than this are removed; 0 keeps all
}

// FileLogger appends events to a JSON-lines file. Rotated files are named
// by lumberjack (audit-2026-01-02T15-04-05.000.log) and are still searched
// by Query.
type FileLogger struct {
	path     string
	rotation RotationConfig

	mu   sync.Mutex
	out  *lumberjack.Logger
	size int64
}

// NewFileLogger opens (creating if needed) the audit log at path.
func NewFileLogger(path string, rotation RotationConfig) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	fi, err := f.Stat()
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	return &FileLogger{
		path:     path,
		rotation: rotation,
		size:     fi.Size(),
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    1 << 20, // rotation is driven by Log, not by lumberjack
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
			LocalTime:  true,
		},
	}, nil
}

// Log appends event, rotating the file first when it has reached
// MaxSize.
func (l *FileLogger) Log(event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotation.MaxSize > 0 && l.size >= l.rotation.MaxSize {
		if err := l.out.Rotate(); err != nil {
			return fmt.Errorf("rotating audit log: %w", err)
		}
		l.size = 0
	}
	n, err := l.out.Write(line)
	l.size += int64(n)
	return err
}

// Query returns the events matching filter, oldest first, reading the
// rotated files before the current one.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.Lock()
	files := append(l.backups(), l.path)
	l.mu.Unlock()

	var events []*Event
	for _, f := range files {
		got, err := readEvents(f, filter)
		if err != nil {
			return nil, err
		}
		events = append(events, got...)
	}

	events = lo.Drop(events, filter.Offset)
	if filter.Limit > 0 && filter.Limit < len(events) {
		events = events[:filter.Limit]
	}
	if events == nil {
		events = []*Event{}
	}
	return events, nil
}

// backups lists the rotated files, oldest first. lumberjack's timestamp
// sorts lexically.
func (l *FileLogger) backups() []string {
	ext := filepath.Ext(l.path)
	matches, err := filepath.Glob(strings.TrimSuffix(l.path, ext) + "-*" + ext)
	if err != nil {
		return nil
	}
	slices.Sort(matches)
	return matches
}

func readEvents(path string, filter Filter) ([]*Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []*Event
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			util.WithComponent("audit").Warnf("skipping malformed entry at %s:%d: %v", filepath.Base(path), lineNum, err)
			continue
		}
		if filter.matches(&event) {
			events = append(events, &event)
		}
	}
	return events, scanner.Err()
}

// Close closes the log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}

func (f Filter) matches(event *Event) bool {
	switch {
	case f.Action != "" && event.Action != f.Action:
		return false
	case f.Port != "" && event.Port != f.Port:
		return false
	case f.RequestID != "" && event.RequestID != f.RequestID:
		return false
	case !f.StartTime.IsZero() && event.Timestamp.Before(f.StartTime):
		return false
	case !f.EndTime.IsZero() && event.Timestamp.After(f.EndTime):
		return false
	case f.SuccessOnly && !event.Success:
		return false
	case f.FailureOnly && event.Success:
		return false
	}
	return true
}

// loggerHolder lets a nil Logger be stored.
type loggerHolder struct {
	logger Logger
}

var defaultLogger atomic.Pointer[loggerHolder]

// SetDefaultLogger sets the logger used by Log and Query. nil disables
// auditing.
func SetDefaultLogger(logger Logger) {
	defaultLogger.Store(&loggerHolder{logger: logger})
}

func getDefaultLogger() Logger {
	if h := defaultLogger.Load(); h != nil {
		return h.logger
	}
	return nil
}

// Log logs an event using the default logger. It is a no-op until
// SetDefaultLogger is called.
func Log(event *Event) error {
	l := getDefaultLogger()
	if l == nil {
		return nil
	}
	return l.Log(event)
}

// Query queries events from the default logger
func Query(filter Filter) ([]*Event, error) {
	l := getDefaultLogger()
	if l == nil {
		return []*Event{}, nil
	}
	return l.Query(filter)
}
