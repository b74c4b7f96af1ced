package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	testCases := []struct {
		testName  string
		level     string
		format    string
		expectErr bool
		expectOut []string
	}{
		{"InfoLogfmt", "info", FormatLogfmt, false, []string{"kept"}},
		{"DebugLogfmt", "debug", "", false, []string{"debug", "kept"}},
		{"WarnDropsInfo", "warn", FormatLogfmt, false, nil},
		{"UnknownFormat", "info", "xml", true, nil},
	}

	for _, testCase := range testCases {
		t.Run(testCase.testName, func(t *testing.T) {
			cfg := NewConfig()
			require.NoError(t, cfg.Level.Set(testCase.level))
			cfg.Format = testCase.format

			var buf bytes.Buffer
			logger, err := New(&buf, cfg)
			if testCase.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			level.Debug(logger).Log("msg", "debug")
			level.Info(logger).Log("msg", "kept")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if len(testCase.expectOut) == 0 {
				assert.Empty(t, strings.TrimSpace(buf.String()))
				return
			}
			require.Len(t, lines, len(testCase.expectOut))
			for i, msg := range testCase.expectOut {
				assert.Contains(t, lines[i], "msg="+msg)
				assert.Contains(t, lines[i], "caller=log_test.go")
			}
		})
	}
}

func TestNew_JSON(t *testing.T) {
	cfg := NewConfig()
	cfg.Format = FormatJSON

	var buf bytes.Buffer
	logger, err := New(&buf, cfg)
	require.NoError(t, err)
	level.Info(logger).Log("msg", "hello", "relation", "orders")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "orders", line["relation"])
	assert.Equal(t, "info", line["level"])
}
