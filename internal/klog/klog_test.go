package klog

import (
	"encoding/json"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureLogger struct {
	lines []string
}

func (c *captureLogger) WriteLineString(s string) { c.lines = append(c.lines, s) }
func (c *captureLogger) WriteLineBytes(b []byte)  { c.lines = append(c.lines, string(b)) }

func TestNewWritesJSONLines(t *testing.T) {
	sink := &captureLogger{}
	log := New(sink, logiface.LevelInformational)

	log.Info().Str("name", "main").Int("tid", 1).Log("thread created")
	log.Debug().Log("filtered")

	require.Len(t, sink.lines, 1)
	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(sink.lines[0]), &ev))
	assert.Equal(t, "main", ev["name"])
	assert.Equal(t, "thread created", ev["msg"])
	assert.Contains(t, ev, "time")
	assert.NotContains(t, sink.lines[0], "\n")
}

func TestLevel(t *testing.T) {
	assert.Equal(t, logiface.LevelDebug, Level(true))
	assert.Equal(t, logiface.LevelInformational, Level(false))
}
