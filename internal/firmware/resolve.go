package firmware

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
	"github.com/rananth45/wokwi-autoscript/internal/ctxlog"
	"github.com/rananth45/wokwi-autoscript/internal/safeio"
	"github.com/rananth45/wokwi-autoscript/internal/scan"
)

// DefaultAmbiguityWindow is the runner-up distance at which a pick among
// several artifacts reaches the highest sub-1.0 confidence.
const DefaultAmbiguityWindow = 2 * time.Minute

const (
	minConfidence = 0.5
	maxAmbiguous  = 0.99
)

// Resolver turns project signals into firmware groups.
type Resolver struct {
	// AmbiguityWindow scales confidence for multi-artifact picks.
	AmbiguityWindow time.Duration
	// Cache serves build folder listings and artifact metadata. Share the
	// prober's cache so folders it already listed are not read again.
	Cache *safeio.StatCache
}

// NewResolver returns a Resolver with its own stat cache.
func NewResolver(window time.Duration) *Resolver {
	if window <= 0 {
		window = DefaultAmbiguityWindow
	}
	return &Resolver{AmbiguityWindow: window, Cache: safeio.NewStatCache(512)}
}

// Resolve applies the disambiguation policy to every signal. Signals without
// build output are dropped with an ArtifactMissing warning; the caller
// decides what zero groups means. Groups come back sorted by name.
func (r *Resolver) Resolve(ctx context.Context, signals []scan.ProjectSignal) ([]Group, []Warning) {
	log := ctxlog.FromContext(ctx)

	ordered := append([]scan.ProjectSignal(nil), signals...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Root != ordered[j].Root {
			return ordered[i].Root < ordered[j].Root
		}
		return ordered[i].Kind < ordered[j].Kind
	})

	var (
		groups   []Group
		warnings []Warning
	)
	for _, sig := range ordered {
		if len(sig.BuildDirs) == 0 {
			warnings = append(warnings, Warning{
				Kind:    apperr.KindArtifactMissing,
				Path:    sig.Root,
				Message: fmt.Sprintf("%s project has no build output; %s", sig.Kind, buildHint(sig.Kind)),
			})
			continue
		}
		for _, bd := range sig.BuildDirs {
			g, ws, ok := r.resolveBuild(sig, bd)
			warnings = append(warnings, ws...)
			if !ok {
				continue
			}
			log.Debug("firmware: resolved", "config", bd.Name, "artifact", g.ArtifactPath, "confidence", g.Confidence)
			groups = append(groups, g)
		}
	}
	for _, w := range warnings {
		log.Warn("firmware: "+w.Message, "kind", w.Kind.String(), "path", w.Path)
	}

	assignNames(groups)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, warnings
}

func (r *Resolver) resolveBuild(sig scan.ProjectSignal, bd scan.BuildDir) (Group, []Warning, bool) {
	sets, err := collectSets(r.Cache, bd.Path, sig.Kind == scan.KindPlatformIO)
	if err != nil || len(sets) == 0 {
		msg := fmt.Sprintf("no .bin/.hex/.elf output in %q; %s", bd.Name, buildHint(sig.Kind))
		if err != nil {
			msg = fmt.Sprintf("cannot read build folder %q: %v", bd.Name, err)
		}
		return Group{}, []Warning{{Kind: apperr.KindArtifactMissing, Path: bd.Path, Message: msg}}, false
	}

	chosen := sets[0]
	confidence := 1.0
	var warnings []Warning
	if len(sets) > 1 {
		gap := chosen.modTime.Sub(sets[1].modTime)
		confidence = Confidence(gap, r.AmbiguityWindow)
		warnings = append(warnings, Warning{
			Kind: apperr.KindAmbiguousArtifact,
			Path: bd.Path,
			Message: fmt.Sprintf("%d artifacts in %q; picked newest %q (runner-up %q built %s earlier, confidence %.2f)",
				len(sets), bd.Name, chosen.stem, sets[1].stem, gap.Round(time.Second), confidence),
		})
	}

	image, format := chosen.primary()
	return Group{
		Kind:         sig.Kind,
		ArtifactPath: image,
		Format:       format,
		ElfPath:      chosen.elf(),
		BuildConfig:  bd.Name,
		Confidence:   confidence,
		BuiltAt:      chosen.modTime,
		ProjectRoot:  sig.Root,
	}, warnings, true
}

// Confidence scores a pick whose runner-up was built gap earlier. Equal
// timestamps score 0.5; a gap of window or more scores 0.99. The result is
// rounded to two decimals so persisted values are stable.
func Confidence(gap, window time.Duration) float64 {
	if window <= 0 {
		window = DefaultAmbiguityWindow
	}
	if gap < 0 {
		gap = -gap
	}
	ratio := math.Min(float64(gap)/float64(window), 1)
	c := minConfidence + (maxAmbiguous-minConfidence)*ratio
	return math.Round(c*100) / 100
}

func buildHint(kind scan.Kind) string {
	if kind == scan.KindPlatformIO {
		return "run 'pio run' first"
	}
	return "build the project in STM32CubeIDE first"
}

// assignNames gives each group a unique name derived from its build
// configuration. Clashes are qualified with the project folder, then
// numbered. Input order decides which group keeps the bare name.
func assignNames(groups []Group) {
	counts := map[string]int{}
	for _, g := range groups {
		counts[Slug(g.BuildConfig)]++
	}
	used := map[string]bool{}
	for i := range groups {
		name := Slug(groups[i].BuildConfig)
		if counts[name] > 1 {
			name = Slug(filepath.Base(groups[i].ProjectRoot)) + "-" + name
		}
		candidate := name
		for n := 2; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s-%d", name, n)
		}
		used[candidate] = true
		groups[i].Name = candidate
	}
}

// Slug lowercases s and replaces every run of characters outside [a-z0-9_]
// with a single dash.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "firmware"
	}
	return out
}
