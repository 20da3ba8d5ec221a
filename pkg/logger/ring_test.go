package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer_CapturesLogLines(t *testing.T) {
	buf := NewRingBuffer(10)

	log := logrus.New()
	log.SetOutput(nullWriter{})
	log.AddHook(buf)

	log.WithField("sku", "123456").Info("record imported")

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "record imported")
	assert.Contains(t, lines[0], "sku=123456")
}

func TestRingBuffer_WrapsOldestFirst(t *testing.T) {
	buf := NewRingBuffer(3)

	log := logrus.New()
	log.SetOutput(nullWriter{})
	log.AddHook(buf)

	log.Info("one")
	log.Info("two")
	log.Info("three")
	log.Info("four")

	lines := buf.Lines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "two")
	assert.Contains(t, lines[2], "four")
}

func TestRingBuffer_Reset(t *testing.T) {
	buf := NewRingBuffer(3)

	log := logrus.New()
	log.SetOutput(nullWriter{})
	log.AddHook(buf)

	log.Info("one")
	buf.Reset()
	assert.Empty(t, buf.Lines())
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
