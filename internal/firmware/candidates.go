package firmware

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rananth45/wokwi-autoscript/internal/safeio"
)

// auxiliaryStems are images PlatformIO emits next to the application that
// are never the firmware itself.
var auxiliaryStems = map[string]bool{
	"bootloader":       true,
	"partitions":       true,
	"boot_app0":        true,
	"ota_data_initial": true,
	"spiffs":           true,
	"littlefs":         true,
	"fatfs":            true,
}

// artifactSet groups the images of one build product sharing a stem, e.g.
// firmware.bin + firmware.elf.
type artifactSet struct {
	stem    string
	images  map[Format]string
	modTime time.Time
}

// primary returns the preferred loadable image.
func (a artifactSet) primary() (string, Format) {
	best := Format("")
	for f := range a.images {
		if best == "" || preference[f] < preference[best] {
			best = f
		}
	}
	return a.images[best], best
}

func (a artifactSet) elf() string { return a.images[FormatELF] }

// collectSets lists firmware outputs directly inside dir and groups them by
// stem. Sets are returned newest first, ties broken by stem.
func collectSets(stats *safeio.StatCache, dir string, skipAux bool) ([]artifactSet, error) {
	entries, err := stats.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	byStem := map[string]*artifactSet{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		format, ok := FormatOf(e.Name())
		if !ok {
			continue
		}
		p := filepath.Join(dir, e.Name())
		info, err := stats.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if skipAux && auxiliaryStems[strings.ToLower(stem)] {
			continue
		}
		set := byStem[stem]
		if set == nil {
			set = &artifactSet{stem: stem, images: map[Format]string{}}
			byStem[stem] = set
		}
		set.images[format] = p
		if info.ModTime().After(set.modTime) {
			set.modTime = info.ModTime()
		}
	}

	out := make([]artifactSet, 0, len(byStem))
	for _, s := range byStem {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].modTime.Equal(out[j].modTime) {
			return out[i].modTime.After(out[j].modTime)
		}
		return out[i].stem < out[j].stem
	})
	return out, nil
}
