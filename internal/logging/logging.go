// Package logging wraps charmbracelet/log into the leveled, per-player
// logger the rest of the bridge uses. One Logger exists per PlayerContext,
// tagged with the player's mac address the way the teacher's log.go
// tagged output with a radio channel number.
package logging

import (
	"fmt"
	"os"
	"sync"

	charm "github.com/charmbracelet/log"
)

// Logger is a small facade over charm.Logger so callers don't import
// charmbracelet directly and so mac-tagging is automatic.
type Logger struct {
	l *charm.Logger
}

var (
	rootMu  sync.Mutex
	rootLog = charm.NewWithOptions(os.Stderr, charm.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
)

// SetLevel adjusts the process-wide default level; individual Loggers
// derived with New still inherit it since they share the root handler.
func SetLevel(level string) {
	rootMu.Lock()
	defer rootMu.Unlock()

	parsed, err := charm.ParseLevel(level)
	if err != nil {
		parsed = charm.InfoLevel
	}

	rootLog.SetLevel(parsed)
}

// New returns a Logger prefixed with a human-readable mac address, e.g.
// "ab:cd:ef:01:02:03".
func New(mac [6]byte) *Logger {
	tag := fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])

	return &Logger{l: rootLog.WithPrefix(tag)}
}

// NewNamed returns a Logger prefixed with an arbitrary component name,
// for process-wide components that aren't tied to one player (discovery,
// the bridge aggregate itself).
func NewNamed(name string) *Logger {
	return &Logger{l: rootLog.WithPrefix(name)}
}

func (lg *Logger) Debug(msg string, kv ...any) { lg.l.Debug(msg, kv...) }
func (lg *Logger) Info(msg string, kv ...any)  { lg.l.Info(msg, kv...) }
func (lg *Logger) Warn(msg string, kv ...any)  { lg.l.Warn(msg, kv...) }
func (lg *Logger) Error(msg string, kv ...any) { lg.l.Error(msg, kv...) }
