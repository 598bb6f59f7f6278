package logutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, test := range tests {
		if got := ParseLevel(test.in); got != test.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestLevelSampler(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Sample(LevelSampler{Level: zerolog.WarnLevel})
	logger.Debug().Msg("dropped")
	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")
	logger.Error().Msg("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("events below the level should be dropped: %s", out)
	}
	if strings.Count(out, "kept") != 2 {
		t.Fatalf("events at or above the level should be kept: %s", out)
	}
}

func TestErrorHook(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(ErrorHook{})
	logger.Error().Msg("boom")
	if !strings.Contains(buf.String(), `"severity":"error"`) {
		t.Fatalf("missing severity: %s", buf.String())
	}
}
