package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_DefaultsToInfo(t *testing.T) {
	if got := New().GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("New() level = %v, want %v", got, zerolog.InfoLevel)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{input: "trace", want: zerolog.TraceLevel},
		{input: "debug", want: zerolog.DebugLevel},
		{input: " DeBuG ", want: zerolog.DebugLevel},
		{input: "", want: zerolog.InfoLevel},
		{input: "info", want: zerolog.InfoLevel},
		{input: "WARNING", want: zerolog.WarnLevel},
		{input: "error", want: zerolog.ErrorLevel},
		{input: "fatal", want: zerolog.InfoLevel, wantErr: true},
		{input: "verbose", want: zerolog.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewWithLevel_UnknownFallsBackToInfo(t *testing.T) {
	if got := NewWithLevel("critical").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("NewWithLevel(critical) level = %v, want %v", got, zerolog.InfoLevel)
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		debug bool
		level string
		want  string
	}{
		{debug: true, level: "error", want: "debug"},
		{debug: false, level: "warn", want: "warn"},
		{debug: false, level: "", want: "info"},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.debug, tt.level); got != tt.want {
			t.Errorf("LevelFor(%v, %q) = %q, want %q", tt.debug, tt.level, got, tt.want)
		}
	}
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")
	logger.Info().Msg("resolving member")
	logger.Warn().Str("member", "alpha").Msg("downgrade")

	out := buf.String()
	if strings.Contains(out, "resolving member") {
		t.Fatalf("expected info line to be dropped, got %q", out)
	}
	if !strings.Contains(out, `"member":"alpha"`) {
		t.Fatalf("expected warn line in output, got %q", out)
	}
}
