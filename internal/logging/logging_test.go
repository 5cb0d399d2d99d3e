package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestInitLevelAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(Config{Level: "info"})

	Info().Msg("hidden")
	l := With("remote")
	l.Warn().Str("dataset", "queries").Msg("fetch failed")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info logged at warn level: %s", out)
	}
	for _, want := range []string{`"component":"remote"`, `"dataset":"queries"`, `"level":"warn"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %s missing %s", out, want)
		}
	}
}

func TestInitBadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "loud", Output: &buf})
	defer Init(Config{Level: "info"})

	Debug().Msg("debug")
	Info().Msg("info")
	if strings.Contains(buf.String(), `"message":"debug"`) || !strings.Contains(buf.String(), `"message":"info"`) {
		t.Fatalf("output=%s", buf.String())
	}
}
