package profiler

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	timer := NewTimer("im_detect")
	assert.Equal(t, time.Duration(0), timer.Average())

	timer.record(10 * time.Millisecond)
	timer.record(30 * time.Millisecond)

	assert.Equal(t, "im_detect", timer.Name())
	assert.Equal(t, int64(2), timer.Calls())
	assert.Equal(t, 20*time.Millisecond, timer.Average())
	assert.Equal(t, 30*time.Millisecond, timer.Last())
	assert.Equal(t, 10*time.Millisecond, timer.minTime)
	assert.Equal(t, 30*time.Millisecond, timer.maxTime)
}

func TestTimer_TicToc(t *testing.T) {
	timer := NewTimer("misc")
	timer.Tic()
	time.Sleep(time.Millisecond)
	d := timer.Toc()
	assert.GreaterOrEqual(t, d, time.Millisecond)
	assert.Equal(t, d, timer.Average())
}

func TestProfiler(t *testing.T) {
	p := New()
	assert.Same(t, p.Timer("a"), p.Timer("a"))

	stop := p.StartOperation("b")
	d := stop()
	assert.Equal(t, int64(1), p.Timer("b").Calls())
	assert.Equal(t, d, p.Timer("b").Last())

	var buf bytes.Buffer
	log := zerolog.New(&buf)
	log.Info().EmbedObject(p).Msg("timers")
	assert.Contains(t, buf.String(), `"b":{"avg"`)
	assert.Contains(t, buf.String(), `"count":1`)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 MB", FormatBytes(1536*1024))
}

func TestReadMemory(t *testing.T) {
	m := ReadMemory()
	require.NotZero(t, m.Sys)

	var buf bytes.Buffer
	log := zerolog.New(&buf)
	log.Info().EmbedObject(m).Msg("memory")
	assert.Contains(t, buf.String(), `"heap_objects"`)
}
