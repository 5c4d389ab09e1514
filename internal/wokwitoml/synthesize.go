package wokwitoml

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
	"github.com/rananth45/wokwi-autoscript/internal/safeio"
)

// Synthesize merges cfg into existing (nil for a fresh document) and returns
// the new document. Paths are written relative to baseDir.
//
// When the regenerated firmware entries match the ones already on disk the
// existing generated_at is kept and cfg.GeneratedAt is updated to it, so an
// unchanged tree produces byte-identical output.
func Synthesize(existing []byte, cfg *Config, baseDir string) ([]byte, error) {
	const op = "wokwitoml: synthesize"
	sizes, err := checkGroups(cfg)
	if err != nil {
		return nil, err
	}
	primary, ok := cfg.PrimaryGroup()
	if !ok {
		return nil, apperr.New(apperr.KindValidation, op, fmt.Sprintf("primary group %q not among groups", cfg.Primary))
	}

	var prev document
	if len(existing) > 0 {
		var raw map[string]any
		if _, err := toml.Decode(string(existing), &raw); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("existing document is not valid TOML: %w", err))
		}
		// A scanner table of an unexpected shape is simply not reused.
		if _, err := toml.Decode(string(existing), &prev); err != nil {
			prev = document{}
			if w, ok := raw["wokwi"].(map[string]any); ok {
				prev.Wokwi = w
			}
		}
	}

	entries := entriesFor(cfg.Groups, baseDir)
	generatedAt := cfg.GeneratedAt.UTC().Truncate(time.Second)
	if p := prev.Scanner; p != nil && !p.GeneratedAt.IsZero() &&
		p.Version == cfg.ScannerVersion && p.Primary == cfg.Primary && sameEntries(p.Firmware, entries) {
		generatedAt = p.GeneratedAt.UTC()
	}
	cfg.GeneratedAt = generatedAt

	wokwi := map[string]any{}
	for k, v := range prev.Wokwi {
		wokwi[k] = v
	}
	for _, k := range ownedWokwiKeys {
		delete(wokwi, k)
	}
	wokwi["version"] = 1
	wokwi["firmware"] = relPath(baseDir, primary.ArtifactPath)
	if primary.ElfPath != "" {
		wokwi["elf"] = relPath(baseDir, primary.ElfPath)
	}

	region, err := encodeRegion(primaryNotes(primary, baseDir, sizes), wokwi, scannerTable{
		Version:     cfg.ScannerVersion,
		GeneratedAt: generatedAt,
		Primary:     cfg.Primary,
		Firmware:    entries,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, err)
	}

	out, err := splice(string(existing), region)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, err)
	}
	var check map[string]any
	if _, err := toml.Decode(out, &check); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("merged document is not valid TOML: %w", err))
	}
	return []byte(out), nil
}

// checkGroups validates names and returns the size of every artifact the
// document will reference.
func checkGroups(cfg *Config) (map[string]int64, error) {
	const op = "wokwitoml: synthesize"
	if len(cfg.Groups) == 0 {
		return nil, apperr.New(apperr.KindValidation, op, "no firmware groups")
	}
	seen := make(map[string]bool, len(cfg.Groups))
	sizes := make(map[string]int64, 2*len(cfg.Groups))
	for _, g := range cfg.Groups {
		if g.Name == "" {
			return nil, apperr.New(apperr.KindValidation, op, "firmware group without a name").WithPath(g.ArtifactPath)
		}
		if seen[g.Name] {
			return nil, apperr.New(apperr.KindValidation, op, fmt.Sprintf("duplicate firmware group name %q", g.Name))
		}
		seen[g.Name] = true
		for _, p := range []string{g.ArtifactPath, g.ElfPath} {
			if p == "" {
				continue
			}
			if _, done := sizes[p]; done {
				continue
			}
			size, err := readable(cfg.Cache, p)
			if err != nil {
				return nil, apperr.Wrap(apperr.KindIO, op, err).WithPath(p)
			}
			sizes[p] = size
		}
	}
	return sizes, nil
}

func readable(cache *safeio.StatCache, path string) (int64, error) {
	info, err := cache.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file")
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	f.Close()
	return info.Size(), nil
}
