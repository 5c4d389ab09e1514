// Package wokwitoml synthesizes the simulator's wokwi.toml. The scanner owns
// one marked region of the document; everything outside it belongs to the
// user and is carried through untouched.
package wokwitoml

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
	"github.com/rananth45/wokwi-autoscript/internal/firmware"
	"github.com/rananth45/wokwi-autoscript/internal/safeio"
)

const (
	BeginMarker = "# >>> wokwi-scanner >>>"
	EndMarker   = "# <<< wokwi-scanner <<<"
)

// wokwi table keys written by the scanner. Other keys in the table are the
// user's and survive regeneration.
var ownedWokwiKeys = []string{"version", "firmware", "elf"}

const freshHeader = `# Wokwi simulator configuration.
# The block between the wokwi-scanner markers is regenerated by "wokwi setup".`

// Config is the scanner-owned content of a wokwi.toml.
type Config struct {
	ScannerVersion string
	GeneratedAt    time.Time
	Primary        string
	Groups         []firmware.Group
	// Cache, when set, answers the artifact checks from the stats the
	// resolver already took.
	Cache *safeio.StatCache
}

// PrimaryGroup returns the group named by Primary.
func (c *Config) PrimaryGroup() (firmware.Group, bool) {
	for _, g := range c.Groups {
		if g.Name == c.Primary {
			return g, true
		}
	}
	return firmware.Group{}, false
}

type entry struct {
	Name        string    `toml:"name"`
	Kind        string    `toml:"kind"`
	Firmware    string    `toml:"firmware"`
	Format      string    `toml:"format"`
	Elf         string    `toml:"elf,omitempty"`
	BuildConfig string    `toml:"build_config"`
	Confidence  float64   `toml:"confidence"`
	BuiltAt     time.Time `toml:"built_at"`
}

type scannerTable struct {
	Version     string    `toml:"version"`
	GeneratedAt time.Time `toml:"generated_at"`
	Primary     string    `toml:"primary"`
	Firmware    []entry   `toml:"firmware"`
}

type document struct {
	Wokwi   map[string]any `toml:"wokwi"`
	Scanner *scannerTable  `toml:"scanner"`
}

// Manifest is the scanner section read back from a document.
type Manifest struct {
	Version     string
	GeneratedAt time.Time
	Primary     string
	Firmware    string
	Elf         string
	Entries     []Entry
}

// Entry is one persisted firmware group.
type Entry struct {
	Name        string
	Kind        string
	Firmware    string
	Format      string
	Elf         string
	BuildConfig string
	Confidence  float64
	BuiltAt     time.Time
}

// Decode parses data and returns its scanner section. A document without
// one yields an empty Manifest.
func Decode(data []byte) (*Manifest, error) {
	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "wokwitoml: decode", err)
	}
	m := &Manifest{}
	if s, ok := doc.Wokwi["firmware"].(string); ok {
		m.Firmware = s
	}
	if s, ok := doc.Wokwi["elf"].(string); ok {
		m.Elf = s
	}
	if doc.Scanner == nil {
		return m, nil
	}
	m.Version = doc.Scanner.Version
	m.GeneratedAt = doc.Scanner.GeneratedAt
	m.Primary = doc.Scanner.Primary
	for _, e := range doc.Scanner.Firmware {
		m.Entries = append(m.Entries, Entry(e))
	}
	return m, nil
}

// Load reads the document at path. A missing file yields nil data and no
// error.
func Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "wokwitoml: load", err).WithPath(path)
	}
	return data, nil
}

// Save replaces the document at path atomically.
func Save(path string, data []byte) error {
	if err := safeio.WriteFileAtomic(path, data, 0o644); err != nil {
		return apperr.Wrap(apperr.KindIO, "wokwitoml: save", err).WithPath(path)
	}
	return nil
}

func entriesFor(groups []firmware.Group, baseDir string) []entry {
	out := make([]entry, 0, len(groups))
	for _, g := range groups {
		e := entry{
			Name:        g.Name,
			Kind:        string(g.Kind),
			Firmware:    relPath(baseDir, g.ArtifactPath),
			Format:      string(g.Format),
			BuildConfig: g.BuildConfig,
			Confidence:  g.Confidence,
			BuiltAt:     g.BuiltAt.UTC().Truncate(time.Second),
		}
		if g.ElfPath != "" {
			e.Elf = relPath(baseDir, g.ElfPath)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func relPath(baseDir, p string) string {
	if baseDir != "" {
		if rel, err := filepath.Rel(baseDir, p); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(p)
}

// encodeRegion renders the managed block, markers included, without a
// trailing newline.
func encodeRegion(notes []string, wokwi map[string]any, scanner scannerTable) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(BeginMarker + "\n")
	buf.WriteString("# Generated by wokwi-scanner. Edits inside this block are overwritten.\n")
	for _, n := range notes {
		buf.WriteString("# " + n + "\n")
	}

	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(struct {
		Wokwi map[string]any `toml:"wokwi"`
	}{wokwi}); err != nil {
		return "", fmt.Errorf("wokwitoml: encode wokwi table: %w", err)
	}
	buf.WriteString("\n")
	if err := enc.Encode(struct {
		Scanner scannerTable `toml:"scanner"`
	}{scanner}); err != nil {
		return "", fmt.Errorf("wokwitoml: encode scanner table: %w", err)
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return string(out) + "\n" + EndMarker, nil
}

// primaryNotes describes the primary image for the region header. Sizes come
// from sizes, keyed by absolute path.
func primaryNotes(g firmware.Group, baseDir string, sizes map[string]int64) []string {
	notes := []string{fmt.Sprintf("Firmware: %s (%s bytes)", relPath(baseDir, g.ArtifactPath), humanize.Comma(sizes[g.ArtifactPath]))}
	if g.ElfPath != "" && g.ElfPath != g.ArtifactPath {
		notes = append(notes, fmt.Sprintf("ELF: %s (%s bytes)", relPath(baseDir, g.ElfPath), humanize.Comma(sizes[g.ElfPath])))
	}
	if !g.BuiltAt.IsZero() {
		notes = append(notes, "Built: "+g.BuiltAt.UTC().Truncate(time.Second).Format(time.RFC3339))
	}
	return notes
}

// sameEntries compares entry lists by their encoded form so decoded and
// freshly built values compare equal regardless of time zone pointers.
func sameEntries(a, b []entry) bool {
	if len(a) != len(b) {
		return false
	}
	ea, errA := encodeEntries(a)
	eb, errB := encodeEntries(b)
	return errA == nil && errB == nil && ea == eb
}

func encodeEntries(es []entry) (string, error) {
	var buf bytes.Buffer
	err := toml.NewEncoder(&buf).Encode(struct {
		Firmware []entry `toml:"firmware"`
	}{es})
	return buf.String(), err
}
