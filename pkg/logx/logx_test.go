package logx

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferKeepsRecentEntries(t *testing.T) {
	logger := NewLogger("buffer-test")
	logger.Info("hello %s", "world")

	entries := GetRecentLogEntries("buffer-test", time.Time{})
	require.NotEmpty(t, entries)

	last := entries[len(entries)-1]
	assert.Equal(t, "buffer-test", last.Component)
	assert.Equal(t, "INFO", last.Level)
	assert.Equal(t, "hello world", last.Message)
}

func TestBufferFiltersByComponent(t *testing.T) {
	NewLogger("component-a").Info("from a")
	NewLogger("component-b").Warn("from b")

	for _, entry := range GetRecentLogEntries("component-a", time.Time{}) {
		assert.Equal(t, "component-a", entry.Component)
	}

	entries := GetRecentLogEntries("component-b", time.Time{})
	require.NotEmpty(t, entries)
	assert.Equal(t, "WARN", entries[len(entries)-1].Level)
}

func TestBufferEviction(t *testing.T) {
	buf := &InMemoryLogBuffer{maxSize: 3}
	for i := 0; i < 5; i++ {
		buf.AddLogEntry(&LogEntry{Component: "evict", Message: string(rune('a' + i))})
	}

	entries := buf.GetLogEntries("evict", time.Time{})
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Message)
	assert.Equal(t, "e", entries[2].Message)
}

func TestDebugDomainFiltering(t *testing.T) {
	SetDebug(true, []string{"conversation"})
	defer SetDebug(false, nil)

	assert.True(t, IsDebugEnabled("conversation"))
	assert.False(t, IsDebugEnabled("heartbeat"))
	// Empty domain checks the global switch only.
	assert.True(t, IsDebugEnabled(""))

	SetDebug(true, nil)
	assert.True(t, IsDebugEnabled("heartbeat"))

	SetDebug(false, nil)
	assert.False(t, IsDebugEnabled("conversation"))
}

func TestDebugEntriesSuppressedWhenDisabled(t *testing.T) {
	SetDebug(false, nil)
	logger := NewLogger("debug-test")
	logger.Debug("should not appear")

	for _, entry := range GetRecentLogEntries("debug-test", time.Time{}) {
		assert.NotEqual(t, "should not appear", entry.Message)
	}
}

func TestErrorfReturnsError(t *testing.T) {
	err := Errorf("setup failed: %w", errors.New("boom"))
	require.Error(t, err)
	assert.Equal(t, "setup failed: boom", err.Error())
	assert.ErrorContains(t, errors.Unwrap(err), "boom")
}

func TestWrap(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(base, "db connect")
	require.Error(t, err)
	assert.Equal(t, "db connect: connection refused", err.Error())
	assert.ErrorIs(t, err, base)

	assert.NoError(t, Wrap(nil, "ignored"))
}
