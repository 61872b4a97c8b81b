package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/gia-client/internal/logging"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

var _ gia.Logger = (*logging.Logger)(nil)

func TestNewJSON_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := logging.NewJSON(&buf, false)
	logger.Debug("hidden", nil)
	logger.Info("applied", map[string]interface{}{"operation": "createApplication", "application_id": "app-1"})
	logger.Error("failed", map[string]interface{}{"status": 502})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "applied", entry["message"])
	assert.Equal(t, "app-1", entry["application_id"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.InDelta(t, 502, entry["status"], 0)
}

func TestNew_Verbose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := logging.New(&buf, true)
	logger.Debug("request", map[string]interface{}{"path": "/governance/application"})
	logger.Warn("slow", nil)

	out := buf.String()
	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "request")
	assert.Contains(t, out, "path=/governance/application")
	assert.Contains(t, out, "WRN")
}
