package logger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	lines []string
}

func (r *recorder) add(level, msg string, keyvals []any) {
	r.lines = append(r.lines, fmt.Sprint(level, " ", msg, keyvals))
}

func (r *recorder) Debug(msg string, kv ...any) { r.add("DEBUG", msg, kv) }
func (r *recorder) Info(msg string, kv ...any)  { r.add("INFO", msg, kv) }
func (r *recorder) Warn(msg string, kv ...any)  { r.add("WARN", msg, kv) }
func (r *recorder) Error(msg string, kv ...any) { r.add("ERROR", msg, kv) }
func (r *recorder) Fatal(msg string, kv ...any) { r.add("FATAL", msg, kv) }

// Not parallel: Init swaps package state.
func TestDispatch(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Init(a, b)
	t.Cleanup(func() { Init() })

	Info("loaded roster", "characters", 3)
	Warn("skipped rows", "count", 1)
	Debug("chunk")
	Error("boom")

	assert.Equal(t, a.lines, b.lines)
	assert.Equal(t, []string{
		"INFO loaded roster[characters 3]",
		"WARN skipped rows[count 1]",
		"DEBUG chunk[]",
		"ERROR boom[]",
	}, a.lines)

	Init()
	Info("dropped")
	assert.Len(t, a.lines, 4)
}
