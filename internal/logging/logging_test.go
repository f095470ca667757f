package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterJSON(t *testing.T) {
	restore(t)
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "warn", false))

	log.Info().Msg("dropped")
	log.Warn().Str("scenario", "berlin").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "berlin", line["scenario"])
	require.Equal(t, "kept", line["message"])
}

func TestSetupWriterPretty(t *testing.T) {
	restore(t)
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "", true))
	log.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
	require.NotContains(t, buf.String(), `"message"`)
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	require.Error(t, SetupWriter(&bytes.Buffer{}, "loud", false))
}

func restore(t *testing.T) {
	prev, lvl := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(lvl)
	})
}
