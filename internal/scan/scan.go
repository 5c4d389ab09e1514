// Package scan is the filesystem prober. It walks a project tree to a bounded
// depth and reports STM32CubeIDE and PlatformIO project signals based on
// marker files and folders. It never reads file contents.
package scan

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
	"github.com/rananth45/wokwi-autoscript/internal/ctxlog"
	"github.com/rananth45/wokwi-autoscript/internal/safeio"
)

// Options controls the walk.
type Options struct {
	// MaxDepth is the deepest directory level (root = 0) inspected for markers.
	MaxDepth int
	// IgnoreDirs are directory base names never descended into.
	IgnoreDirs []string
	// Cache, when set, keeps the listings of build folders for the resolver.
	Cache *safeio.StatCache
}

var defaultIgnoreDirs = []string{
	".git", ".svn", ".hg", "node_modules", ".pio", ".vscode", ".idea",
	".metadata", ".settings", "Drivers", "Middlewares",
}

// DefaultOptions returns the options used when the caller has no preference.
func DefaultOptions() Options {
	return Options{
		MaxDepth:   4,
		IgnoreDirs: append([]string(nil), defaultIgnoreDirs...),
	}
}

// Probe walks root and returns one ProjectSignal per detected marker set,
// sorted by root then kind. Absence of markers is not an error: the result
// is simply empty. Once a project is found its subtree is not walked further.
func Probe(ctx context.Context, root string, opts Options) ([]ProjectSignal, error) {
	log := ctxlog.FromContext(ctx)
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "probe", err).WithPath(root)
	}
	fsys.WithCache(opts.Cache)
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	ignore := make(map[string]struct{}, len(opts.IgnoreDirs))
	for _, d := range opts.IgnoreDirs {
		if d = strings.TrimSpace(d); d != "" {
			ignore[d] = struct{}{}
		}
	}

	base := fsys.Root()
	var signals []ProjectSignal
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == base {
				return walkErr
			}
			log.Debug("probe: skipping unreadable entry", "path", p, "err", walkErr)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p != base {
			if _, skip := ignore[d.Name()]; skip {
				return filepath.SkipDir
			}
		}
		if depthOf(fsys.Rel(p)) > opts.MaxDepth {
			return filepath.SkipDir
		}

		entries, err := fsys.SafeReadDir(p)
		if err != nil {
			log.Debug("probe: cannot list directory", "path", p, "err", err)
			return filepath.SkipDir
		}
		found := detect(fsys, p, entries)
		if len(found) == 0 {
			return nil
		}
		for _, s := range found {
			log.Debug("probe: project detected", "kind", s.Kind, "root", s.Root, "builds", len(s.BuildDirs))
		}
		signals = append(signals, found...)
		return filepath.SkipDir
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindIO, "probe", err).WithPath(base)
	}

	sort.Slice(signals, func(i, j int) bool {
		if signals[i].Root != signals[j].Root {
			return signals[i].Root < signals[j].Root
		}
		return signals[i].Kind < signals[j].Kind
	})
	return signals, nil
}

// depthOf returns the directory level of a root-relative slash path.
func depthOf(rel string) int {
	if rel == "." || rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}
