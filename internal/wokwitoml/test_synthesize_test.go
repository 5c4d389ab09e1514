package wokwitoml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
	"github.com/rananth45/wokwi-autoscript/internal/firmware"
	"github.com/rananth45/wokwi-autoscript/internal/safeio"
	"github.com/rananth45/wokwi-autoscript/internal/scan"
)

var built = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func sampleConfig(t *testing.T, root string) *Config {
	t.Helper()
	return &Config{
		ScannerVersion: "1.2.0",
		GeneratedAt:    time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC),
		Primary:        "release",
		Groups: []firmware.Group{
			{
				Name:         "release",
				Kind:         scan.KindSTM32CubeIDE,
				ArtifactPath: write(t, root, "Release/app.bin", "bin"),
				Format:       firmware.FormatBIN,
				ElfPath:      write(t, root, "Release/app.elf", "elf"),
				BuildConfig:  "Release",
				Confidence:   1.0,
				BuiltAt:      built.Add(time.Minute),
			},
			{
				Name:         "debug",
				Kind:         scan.KindSTM32CubeIDE,
				ArtifactPath: write(t, root, "Debug/app.elf", "elf"),
				Format:       firmware.FormatELF,
				ElfPath:      filepath.Join(root, "Debug", "app.elf"),
				BuildConfig:  "Debug",
				Confidence:   0.62,
				BuiltAt:      built,
			},
		},
	}
}

func TestSynthesize_FreshDocument(t *testing.T) {
	root := t.TempDir()
	cfg := sampleConfig(t, root)

	out, err := Synthesize(nil, cfg, root)
	require.NoError(t, err)
	text := string(out)

	assert.True(t, strings.HasPrefix(text, "# Wokwi simulator configuration."))
	assert.Contains(t, text, BeginMarker)
	assert.Contains(t, text, EndMarker)
	assert.True(t, strings.HasSuffix(text, EndMarker+"\n"))

	m, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "Release/app.bin", m.Firmware)
	assert.Equal(t, "Release/app.elf", m.Elf)
	assert.Equal(t, "1.2.0", m.Version)
	assert.Equal(t, "release", m.Primary)
	assert.True(t, m.GeneratedAt.Equal(cfg.GeneratedAt))

	require.Len(t, m.Entries, 2)
	assert.Equal(t, "debug", m.Entries[0].Name)
	assert.Equal(t, "Debug/app.elf", m.Entries[0].Firmware)
	assert.Equal(t, "ELF", m.Entries[0].Format)
	assert.Equal(t, 0.62, m.Entries[0].Confidence)
	assert.Equal(t, "release", m.Entries[1].Name)
	assert.Equal(t, "STM32CUBEIDE", m.Entries[1].Kind)
	assert.Equal(t, "Release", m.Entries[1].BuildConfig)
	assert.True(t, m.Entries[1].BuiltAt.Equal(built.Add(time.Minute)))
}

func TestSynthesize_IsIdempotent(t *testing.T) {
	root := t.TempDir()
	first, err := Synthesize(nil, sampleConfig(t, root), root)
	require.NoError(t, err)

	// A later run over the same tree must not bump generated_at.
	cfg := sampleConfig(t, root)
	cfg.GeneratedAt = cfg.GeneratedAt.Add(time.Hour)
	second, err := Synthesize(first, cfg, root)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.True(t, cfg.GeneratedAt.Equal(time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)))

	third, err := Synthesize(second, sampleConfig(t, root), root)
	require.NoError(t, err)
	assert.Equal(t, string(second), string(third))
}

func TestSynthesize_ChangedEntriesRefreshTimestamp(t *testing.T) {
	root := t.TempDir()
	first, err := Synthesize(nil, sampleConfig(t, root), root)
	require.NoError(t, err)

	cfg := sampleConfig(t, root)
	cfg.GeneratedAt = cfg.GeneratedAt.Add(time.Hour)
	cfg.Groups[0].BuiltAt = cfg.Groups[0].BuiltAt.Add(time.Hour)
	second, err := Synthesize(first, cfg, root)
	require.NoError(t, err)
	assert.NotEqual(t, string(first), string(second))

	m, err := Decode(second)
	require.NoError(t, err)
	assert.True(t, m.GeneratedAt.Equal(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)))
}

func TestSynthesize_PreservesUserSections(t *testing.T) {
	root := t.TempDir()
	first, err := Synthesize(nil, sampleConfig(t, root), root)
	require.NoError(t, err)

	userTop := "# my board notes\n"
	userBottom := "[[chip]]\nname = 'uart-bridge'  # custom chip\nbinary = 'chips/uart.chip.wasm'\n\n[[net.forward]]\nfrom = \"localhost:8180\"\nto = \"target:80\"\n"
	edited := userTop + string(first) + "\n" + userBottom

	out, err := Synthesize([]byte(edited), sampleConfig(t, root), root)
	require.NoError(t, err)
	text := string(out)

	assert.True(t, strings.HasPrefix(text, userTop))
	assert.True(t, strings.HasSuffix(text, userBottom))
	assert.Equal(t, 1, strings.Count(text, BeginMarker))
	assert.Equal(t, 1, strings.Count(text, "[wokwi]"))

	again, err := Synthesize(out, sampleConfig(t, root), root)
	require.NoError(t, err)
	assert.Equal(t, text, string(again))
}

func TestSynthesize_ReplacesOnlyScannerRegion(t *testing.T) {
	root := t.TempDir()
	first, err := Synthesize(nil, sampleConfig(t, root), root)
	require.NoError(t, err)
	edited := string(first) + "\n[[chip]]\nname = 'keep-me'\n"

	cfg := sampleConfig(t, root)
	cfg.Groups = cfg.Groups[1:]
	cfg.Primary = "debug"
	out, err := Synthesize([]byte(edited), cfg, root)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(string(out), "[[chip]]\nname = 'keep-me'\n"))
	m, err := Decode(out)
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	assert.Equal(t, "debug", m.Entries[0].Name)
	assert.Equal(t, "Debug/app.elf", m.Firmware)
}

func TestSynthesize_CarriesUserWokwiKeys(t *testing.T) {
	root := t.TempDir()
	first, err := Synthesize(nil, sampleConfig(t, root), root)
	require.NoError(t, err)
	edited := strings.Replace(string(first), "[wokwi]\n", "[wokwi]\ngdbServerPort = 3333\n", 1)

	out, err := Synthesize([]byte(edited), sampleConfig(t, root), root)
	require.NoError(t, err)
	assert.Contains(t, string(out), "gdbServerPort = 3333")
	assert.Equal(t, 1, strings.Count(string(out), "[wokwi]"))
}

func TestSynthesize_MigratesLegacyDocument(t *testing.T) {
	root := t.TempDir()
	legacy := `# Wokwi Configuration - Auto-generated
# Firmware: app.bin (1,024 bytes)

[wokwi]
version = 1
firmware = 'Release/app.bin'
elf = 'Release/app.elf'
gdbServerPort = 3333

[[chip]]
name = 'blinker'
binary = 'blinker.chip.wasm'
`
	out, err := Synthesize([]byte(legacy), sampleConfig(t, root), root)
	require.NoError(t, err)
	text := string(out)

	assert.True(t, strings.HasPrefix(text, "# Wokwi Configuration - Auto-generated\n# Firmware: app.bin (1,024 bytes)\n\n"+BeginMarker))
	assert.True(t, strings.HasSuffix(text, EndMarker+"\n\n[[chip]]\nname = 'blinker'\nbinary = 'blinker.chip.wasm'\n"))
	assert.Equal(t, 1, strings.Count(text, "[wokwi]"))
	assert.Contains(t, text, "gdbServerPort = 3333")

	again, err := Synthesize(out, sampleConfig(t, root), root)
	require.NoError(t, err)
	assert.Equal(t, text, string(again))
}

func TestSynthesize_AppendsToUnmanagedDocument(t *testing.T) {
	root := t.TempDir()
	existing := "[[chip]]\nname = 'x'\n"
	out, err := Synthesize([]byte(existing), sampleConfig(t, root), root)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), existing+"\n"+BeginMarker))
}

func TestSynthesize_CorruptDocumentIsValidationError(t *testing.T) {
	root := t.TempDir()
	_, err := Synthesize([]byte("[wokwi\nfirmware = "), sampleConfig(t, root), root)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSynthesize_DuplicateNamesRejected(t *testing.T) {
	root := t.TempDir()
	cfg := sampleConfig(t, root)
	cfg.Groups[1].Name = "release"
	_, err := Synthesize(nil, cfg, root)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSynthesize_MissingArtifactIsIOError(t *testing.T) {
	root := t.TempDir()
	cfg := sampleConfig(t, root)
	require.NoError(t, os.Remove(cfg.Groups[0].ArtifactPath))
	_, err := Synthesize(nil, cfg, root)
	require.Error(t, err)
	assert.Equal(t, apperr.KindIO, apperr.KindOf(err))
}

func TestSynthesize_UnknownPrimaryRejected(t *testing.T) {
	root := t.TempDir()
	cfg := sampleConfig(t, root)
	cfg.Primary = "nope"
	_, err := Synthesize(nil, cfg, root)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wokwi.toml")

	data, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, Save(path, []byte("[wokwi]\nversion = 1\n")))
	data, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "[wokwi]\nversion = 1\n", string(data))

	err = Save(filepath.Join(dir, "missing", "wokwi.toml"), []byte("x"))
	assert.Equal(t, apperr.KindIO, apperr.KindOf(err))
}

func TestTableRoot(t *testing.T) {
	cases := map[string]string{
		"[wokwi]":                 "wokwi",
		"  [[scanner.firmware]]":  "scanner",
		`["wokwi"]`:               "wokwi",
		"[net.forward] # comment": "net",
	}
	for line, want := range cases {
		got, ok := tableRoot(line)
		assert.True(t, ok, line)
		assert.Equal(t, want, got, line)
	}
	_, ok := tableRoot("  [1, 2],")
	assert.False(t, ok)
	_, ok = tableRoot("firmware = 'a'")
	assert.False(t, ok)
}

func TestSynthesize_KeepsCommentsAfterOwnedTables(t *testing.T) {
	root := t.TempDir()
	legacy := "[wokwi]\nversion = 1\nfirmware = 'old.bin'\n\n# my custom chip, do not remove\n[[chip]]\nname = 'c'\nbinary = 'c.chip.wasm'\n"

	out, err := Synthesize([]byte(legacy), sampleConfig(t, root), root)
	require.NoError(t, err)
	assert.Contains(t, string(out), "# my custom chip, do not remove\n[[chip]]\nname = 'c'\n")
	assert.NotContains(t, string(out), "old.bin")

	tail := "\n[wokwi.serialMonitor]\nport = 'ttyUSB0'\n\n# net forwarding for the web server\n[[net.forward]]\nfrom = 'localhost:8180'\nto = 'target:80'\n"
	out, err = Synthesize(append(out, tail...), sampleConfig(t, root), root)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "# net forwarding for the web server\n[[net.forward]]\n")
	assert.Contains(t, text, "# my custom chip, do not remove\n")
	assert.Contains(t, text, `port = "ttyUSB0"`)
	assert.Equal(t, 1, strings.Count(text, "[wokwi.serialMonitor]"))

	again, err := Synthesize(out, sampleConfig(t, root), root)
	require.NoError(t, err)
	assert.Equal(t, text, string(again))
}

func TestSynthesize_RejectsUnbalancedMarkers(t *testing.T) {
	root := t.TempDir()
	first, err := Synthesize(nil, sampleConfig(t, root), root)
	require.NoError(t, err)

	cases := map[string]string{
		"begin without end": BeginMarker + "\n\n[[chip]]\nname = 'keep-me'\n",
		"end without begin": "[[chip]]\nname = 'keep-me'\n" + EndMarker + "\n",
		"nested begin":      BeginMarker + "\n[[chip]]\nname = 'keep-me'\n" + string(first),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Synthesize([]byte(doc), sampleConfig(t, root), root)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Contains(t, err.Error(), "line ")
		})
	}
}

func TestSynthesize_HeaderDescribesPrimary(t *testing.T) {
	root := t.TempDir()
	cfg := sampleConfig(t, root)
	write(t, root, "Release/app.bin", strings.Repeat("x", 1500))

	out, err := Synthesize(nil, cfg, root)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "# Firmware: Release/app.bin (1,500 bytes)\n")
	assert.Contains(t, text, "# ELF: Release/app.elf (3 bytes)\n")
	assert.Contains(t, text, "# Built: 2026-03-01T12:01:00Z\n")

	// An ELF-only primary is listed once.
	cfg = sampleConfig(t, root)
	cfg.Primary = "debug"
	out, err = Synthesize(nil, cfg, root)
	require.NoError(t, err)
	assert.Contains(t, string(out), "# Firmware: Debug/app.elf (3 bytes)\n")
	assert.NotContains(t, string(out), "# ELF:")
}

func TestSynthesize_ChecksArtifactsThroughCache(t *testing.T) {
	root := t.TempDir()
	cfg := sampleConfig(t, root)
	cfg.Cache = safeio.NewStatCache(16)
	for _, g := range cfg.Groups {
		_, err := cfg.Cache.Stat(g.ArtifactPath)
		require.NoError(t, err)
	}

	_, err := Synthesize(nil, cfg, root)
	require.NoError(t, err)
	hits, _ := cfg.Cache.Counts()
	assert.GreaterOrEqual(t, hits, int64(2))
}
