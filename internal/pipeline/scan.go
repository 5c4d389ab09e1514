// Package pipeline composes the setup and diagram stages into the two
// operations the launcher calls. Every dependency (logger, HTTP client,
// mirror store, clock) is passed in; nothing here reads process state.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
	"github.com/rananth45/wokwi-autoscript/internal/artifact"
	"github.com/rananth45/wokwi-autoscript/internal/ctxlog"
	"github.com/rananth45/wokwi-autoscript/internal/firmware"
	"github.com/rananth45/wokwi-autoscript/internal/safeio"
	"github.com/rananth45/wokwi-autoscript/internal/scan"
	"github.com/rananth45/wokwi-autoscript/internal/wokwitoml"
)

// Version is recorded in every synthesized wokwi.toml.
const Version = "1.0.0"

// ScanOptions configures Scan. Zero values take defaults.
type ScanOptions struct {
	// ConfigFile is the wokwi.toml to write; relative paths are resolved
	// against the scanned root.
	ConfigFile string
	// Select names the group to make primary. Empty picks the most
	// confident, then newest.
	Select          string
	Probe           scan.Options
	AmbiguityWindow time.Duration
	// Mirror, when set, receives a copy of the written document.
	Mirror artifact.Mirror
	Now    func() time.Time
}

// ScanResult is the outcome of a successful Scan.
type ScanResult struct {
	Config   wokwitoml.Config
	Path     string
	Warnings []firmware.Warning
	// Changed is false when the document on disk was already up to date.
	Changed bool
}

// Scan probes root for firmware projects, resolves their build output and
// merges the result into the config file.
func Scan(ctx context.Context, root string, opts ScanOptions) (*ScanResult, error) {
	const op = "pipeline: scan"
	log := ctxlog.FromContext(ctx)

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, op, err).WithPath(root)
	}
	// Artifact paths come back symlink-free; keep the config dir comparable.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	// One cache per scan: the resolver and the config check reread what the
	// prober already listed.
	walkOpts := walkOptions(opts.Probe)
	if walkOpts.Cache == nil {
		walkOpts.Cache = safeio.NewStatCache(1024)
	}
	cache := walkOpts.Cache

	log.Debug("pipeline: probing", "root", abs, "depth", walkOpts.MaxDepth)
	signals, err := scan.Probe(ctx, abs, walkOpts)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, apperr.New(apperr.KindDetection, op,
			"no STM32CubeIDE (.ioc) or PlatformIO (platformio.ini) project found").WithPath(abs)
	}

	resolver := firmware.NewResolver(opts.AmbiguityWindow)
	resolver.Cache = cache
	groups, warnings := resolver.Resolve(ctx, signals)
	if len(groups) == 0 {
		msg := fmt.Sprintf("found %d project(s) but no firmware build output", len(signals))
		if len(warnings) > 0 {
			msg += ": " + warnings[0].Message
		}
		return nil, apperr.New(apperr.KindDetection, op, msg).WithPath(abs)
	}

	primary, err := choosePrimary(groups, opts.Select)
	if err != nil {
		return nil, err
	}

	cfgPath := opts.ConfigFile
	if cfgPath == "" {
		cfgPath = "wokwi.toml"
	}
	if !filepath.IsAbs(cfgPath) {
		cfgPath = filepath.Join(abs, cfgPath)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	existing, err := wokwitoml.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg := wokwitoml.Config{
		ScannerVersion: Version,
		GeneratedAt:    now(),
		Primary:        primary.Name,
		Groups:         groups,
		Cache:          cache,
	}
	out, err := wokwitoml.Synthesize(existing, &cfg, filepath.Dir(cfgPath))
	if err != nil {
		return nil, err
	}

	hits, misses := cache.Counts()
	log.Debug("pipeline: stat cache", "hits", hits, "misses", misses)

	res := &ScanResult{Config: cfg, Path: cfgPath, Warnings: warnings, Changed: !bytes.Equal(existing, out)}
	if res.Changed {
		if err := wokwitoml.Save(cfgPath, out); err != nil {
			return nil, err
		}
		log.Info("pipeline: wrote config", "path", cfgPath, "groups", len(groups), "primary", primary.Name)
	} else {
		log.Info("pipeline: config up to date", "path", cfgPath)
	}

	mirror(ctx, opts.Mirror, "setup/"+firmware.Slug(filepath.Base(abs)), filepath.Base(cfgPath), out)
	return res, nil
}

// walkOptions fills each unset field from scan.DefaultOptions. A non-nil
// empty IgnoreDirs disables the ignore list.
func walkOptions(o scan.Options) scan.Options {
	d := scan.DefaultOptions()
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.IgnoreDirs == nil {
		o.IgnoreDirs = d.IgnoreDirs
	}
	return o
}

// choosePrimary returns the named group, or the most confident one with
// ties going to the newest build and then the name.
func choosePrimary(groups []firmware.Group, name string) (firmware.Group, error) {
	if name != "" {
		names := make([]string, 0, len(groups))
		for _, g := range groups {
			if g.Name == name {
				return g, nil
			}
			names = append(names, g.Name)
		}
		return firmware.Group{}, apperr.New(apperr.KindValidation, "pipeline: scan",
			fmt.Sprintf("no firmware group named %q (have %s)", name, strings.Join(names, ", ")))
	}
	ranked := append([]firmware.Group(nil), groups...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.BuiltAt.Equal(b.BuiltAt) {
			return a.BuiltAt.After(b.BuiltAt)
		}
		return a.Name < b.Name
	})
	return ranked[0], nil
}

// mirror copies a written document to m. The local file is the
// durable state, so failures only warn.
func mirror(ctx context.Context, m artifact.Mirror, namespace, name string, data []byte) {
	if m == nil {
		return
	}
	log := ctxlog.FromContext(ctx)
	if err := m.Put(ctx, namespace, name, data); err != nil {
		log.Warn("pipeline: mirror failed", "namespace", namespace, "name", name, "err", err)
		return
	}
	log.Debug("pipeline: mirrored", "namespace", namespace, "name", name)
}
