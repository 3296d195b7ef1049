package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromZapRecordsModuleAndDetails(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	l.Info("csvquery", "answered", map[string]interface{}{"rows": 2})
	l.Error("web", "agent failed", map[string]interface{}{"error": errors.New("boom")})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "answered", entries[0].Message)
	assert.Equal(t, "csvquery", entries[0].ContextMap()["module"])
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestNilDetailsAreSafe(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))
	l.Warn("gate", "mismatch", nil)
	require.Equal(t, 1, logs.Len())
}

func TestFileCoreWritesJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "csvbot.log")
	l := New(Config{FilePath: p, Production: true})
	l.Info("serve", "listening", map[string]interface{}{"addr": ":8501"})
	_ = l.Sync()

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	line := strings.TrimSpace(string(b))
	assert.Contains(t, line, `"message":"listening"`)
	assert.Contains(t, line, `"module":"serve"`)
	assert.Contains(t, line, `"level":"INFO"`)
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Debug("x", "y", nil)
	assert.NoError(t, l.Sync())
}
