// Package logtest provides the silent logger used across unit tests.
package logtest

import (
	"io"
	"log/slog"
	"testing"
)

func New(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
