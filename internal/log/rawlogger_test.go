package log_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fightstick/fightstick/internal/log"
	"github.com/stretchr/testify/assert"
)

func TestRawLogger(t *testing.T) {
	var buf bytes.Buffer
	l := log.NewRaw(&buf)

	l.Log(true, []byte{0x00, 0x80, 0xff})
	l.Log(false, []byte{0x08})
	l.Log(true, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "C->S chunk: 3 bytes, hex: 00 80 ff")
	assert.Contains(t, lines[1], "S->C chunk: 1 bytes, hex: 08")
}

func TestRawLoggerNilWriter(t *testing.T) {
	assert.NotPanics(t, func() {
		log.NewRaw(nil).Log(true, []byte{1, 2, 3})
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, log.LevelTrace, log.ParseLevel("trace"))
	assert.Equal(t, log.LevelTrace, log.ParseLevel("TRACE"))
	assert.Equal(t, -4, int(log.ParseLevel("debug")))
	assert.Equal(t, 0, int(log.ParseLevel("")))
	assert.Equal(t, 0, int(log.ParseLevel("bogus")))
	assert.Equal(t, 8, int(log.ParseLevel("error")))
}
