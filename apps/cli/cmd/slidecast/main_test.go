package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testDeck = `subject: Solar Power
slides:
  - role: cover
    title: Hello
  - role: content
`

func writeDeck(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deck.yaml")
	if err := os.WriteFile(path, []byte(testDeck), 0o644); err != nil {
		t.Fatalf("write deck: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSchemaCommand(t *testing.T) {
	t.Parallel()

	out, err := run(t, "schema")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(out), &schema); err != nil {
		t.Fatalf("schema output is not JSON: %v", err)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %v", schema)
	}
	if _, ok := props["slides"]; !ok {
		t.Errorf("schema properties = %v, want slides", props)
	}
}

func TestDurationsCommand(t *testing.T) {
	t.Parallel()

	out, err := run(t, "durations", writeDeck(t))
	if err != nil {
		t.Fatalf("durations: %v", err)
	}

	var got durationsOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(got.Slides) != 2 {
		t.Fatalf("slides = %d, want 2", len(got.Slides))
	}
	if got.Slides[0].DurationMs != 400 || !got.Slides[0].Narrated {
		t.Errorf("first slide = %+v, want narrated 400ms", got.Slides[0])
	}
	if got.Slides[1].Narrated {
		t.Errorf("empty slide should not be narrated: %+v", got.Slides[1])
	}
	// 400 + 2000 gap, then the 3000 fallback.
	if got.TotalMs != 5400 {
		t.Errorf("total = %d, want 5400", got.TotalMs)
	}
}

func TestWAVCommand(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "narration.wav")
	if _, err := run(t, "wav", writeDeck(t), "-o", path); err != nil {
		t.Fatalf("wav: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("not a WAV file: % x", data[:min(len(data), 16)])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 44100 {
		t.Errorf("sample rate = %d, want 44100", rate)
	}
	dataLen := binary.LittleEndian.Uint32(data[40:44])
	if int(dataLen) != len(data)-44 {
		t.Errorf("data chunk = %d, want %d", dataLen, len(data)-44)
	}
}

func TestExportCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out, err := run(t, "export", writeDeck(t),
		"--out", dir,
		"--encoder", "memory",
		"--fast",
		"--width", "32", "--height", "18", "--fps", "2",
	)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "solar-power-*.mp4"))
	if err != nil || len(files) != 1 {
		t.Fatalf("exported files = %v (%v), want one", files, err)
	}
	if !strings.Contains(out, files[0]) {
		t.Errorf("output %q does not name %s", out, files[0])
	}
	info, err := os.Stat(files[0])
	if err != nil || info.Size() == 0 {
		t.Errorf("exported file empty or missing: %v", err)
	}
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()

	deck := writeDeck(t)
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing deck argument", args: []string{"durations"}},
		{name: "deck not found", args: []string{"durations", filepath.Join(t.TempDir(), "nope.yaml")}},
		{name: "unknown voice", args: []string{"--voice", "robot", "durations", deck}},
		{name: "unknown provider", args: []string{"--provider", "carrier-pigeon", "durations", deck}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}
