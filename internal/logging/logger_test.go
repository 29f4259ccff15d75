package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace": TRACE,
		"DEBUG": DEBUG,
		"":      INFO,
		"warn":  WARN,
		"error": ERROR,
		"off":   OFF,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		require.NoError(t, err, "Уровень %q должен разбираться", input)
		assert.Equal(t, want, got, "Неверный уровень для %q", input)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err, "Неизвестный уровень должен давать ошибку")
}

func TestWriterLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("terrain", &buf, WARN)

	logger.Info("не должно попасть")
	logger.Warn("чанк %d заменён", 7)

	out := buf.String()
	assert.NotContains(t, out, "не должно попасть", "INFO ниже порога WARN")
	assert.True(t, strings.Contains(out, "[WARN] [terrain] чанк 7 заменён"), "Ожидалась строка WARN, получено %q", out)
}

func TestPackageFunctionsWithoutLoggerAreNoop(t *testing.T) {
	SetDefaultLogger(nil)
	// Не должно паниковать
	Info("тишина %d", 1)
	Error("тишина")
	LogChunkGenerated(1, 129, false)
}

func TestDefaultLoggerSwap(t *testing.T) {
	var buf bytes.Buffer
	SetDefaultLogger(NewWriterLogger("", &buf, DEBUG))
	defer SetDefaultLogger(nil)

	Debug("backend %s", "arcade")
	assert.Contains(t, buf.String(), "[DEBUG] backend arcade")
}

func TestManagerRegistry(t *testing.T) {
	lm := NewLoggerManager()
	var simBuf, httpBuf bytes.Buffer
	lm.Register("simulator", NewWriterLogger("simulator", &simBuf, INFO))
	lm.Register("http", NewWriterLogger("http", &httpBuf, INFO))

	assert.Equal(t, []string{"http", "simulator"}, lm.Components(), "Компоненты отсортированы")

	logger, ok := lm.Lookup("http")
	require.True(t, ok)
	logger.Debug("скрыто")
	lm.SetLevels(DEBUG, OFF)
	logger.Debug("GET /state")
	assert.NotContains(t, httpBuf.String(), "скрыто")
	assert.Contains(t, httpBuf.String(), "[DEBUG] [http] GET /state", "Пороги применены ко всем логгерам")

	_, ok = lm.Lookup("terrain")
	assert.False(t, ok)

	require.NoError(t, lm.CloseAll())
	assert.Empty(t, lm.Components(), "CloseAll очищает реестр")
}

func TestComponentFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	SetDefaultLogger(NewWriterLogger("", &buf, INFO))
	defer SetDefaultLogger(nil)

	Component("nonexistent_component").Info("через логгер по умолчанию")
	assert.Contains(t, buf.String(), "через логгер по умолчанию")

	SetDefaultLogger(nil)
	// nil-логгер безопасен
	Component("nonexistent_component").Warn("тишина")
}
