package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewNamesLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	New("stomp").Infow("connected", "connectionId", "abc")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "stomp", entries[0].LoggerName)
		assert.Equal(t, "abc", entries[0].ContextMap()["connectionId"])
	}
}
