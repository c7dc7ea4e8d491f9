package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "json")

	log.Info("auth.login.ok")
	log.Warn("auth.refresh.reuse", "account_id", "a1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "auth.refresh.reuse", rec["msg"])
	assert.Equal(t, "a1", rec["account_id"])
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "debug", "TEXT")
	log.Debug("gate.token.rejected", "reason", "expired")
	assert.Contains(t, buf.String(), "msg=gate.token.rejected")
	assert.Contains(t, buf.String(), "reason=expired")
}
