package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender logs through testing.TB so lines are attributed to the running test.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns a logger appender that logs to the underlying `testing.TB` object.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

// Write implements Appender.
func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	line, err := formatLine(entry, fields)
	tapp.tb.Log(line)
	return err
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}
