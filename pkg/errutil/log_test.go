package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/stagepass/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("REFRESH_LOOKUP_FAILED").With("user_id", "u1").Errorf("lookup failed")
	errutil.LogError(context.Background(), logger, "rotate failed", err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "rotate failed", entry["msg"])
	assert.Equal(t, "REFRESH_LOOKUP_FAILED", entry["code"])
	require.IsType(t, map[string]any{}, entry["context"])
	assert.Equal(t, "u1", entry["context"].(map[string]any)["user_id"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(context.Background(), logger, "operation failed", errors.New("standard error"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
}

func TestCode(t *testing.T) {
	wrapped := oops.Code("DB_TX_BEGIN_FAILED").Wrap(errors.New("boom"))
	assert.Equal(t, "DB_TX_BEGIN_FAILED", errutil.Code(wrapped))
	assert.Empty(t, errutil.Code(errors.New("plain")))
	errutil.AssertErrorCode(t, wrapped, "DB_TX_BEGIN_FAILED")
}
