package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMessages(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	Messages(log, zerolog.ErrorLevel, []api.Message{
		{
			ID:       "resolve",
			Text:     `Could not resolve "missing"`,
			Location: &api.Location{File: "src/index.js", Line: 3, Column: 7},
		},
		{
			Text:       "plugin failed",
			PluginName: "copy",
		},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "error", first["level"])
	require.Equal(t, `Could not resolve "missing"`, first["message"])
	require.Equal(t, "src/index.js", first["file"])
	require.EqualValues(t, 3, first["line"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "copy", second["plugin"])
	require.NotContains(t, second, "file")
}

func TestSetup(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, Setup(false).GetLevel())
	require.Equal(t, zerolog.DebugLevel, Setup(true).GetLevel())
}
