package console

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	t.Parallel()

	t.Run("InfoHidesDebug", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Params{Output: &buf})

		l.Debug("hidden")
		l.Info("shown", "chunks", 4)

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "shown")
		assert.Contains(t, out, "chunks=4")
	})

	t.Run("DebugEnabled", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Params{Debug: true, Output: &buf})

		l.Debug("visible")
		assert.Contains(t, buf.String(), "visible")
	})

	t.Run("WarnAndError", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Params{Output: &buf})

		l.Warn("skipped rows", "count", 2)
		l.Error("export failed")

		out := buf.String()
		assert.Contains(t, out, "WARN")
		assert.Contains(t, out, "count=2")
		assert.Contains(t, out, "ERRO")
		assert.Contains(t, out, "export failed")
	})
}
