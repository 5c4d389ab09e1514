package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rananth45/wokwi-autoscript/internal/safeio"
)

// Kind identifies the toolchain that produced a project.
type Kind string

const (
	KindSTM32CubeIDE Kind = "STM32CUBEIDE"
	KindPlatformIO   Kind = "PLATFORMIO"
)

// BuildDir is one build configuration (STM32) or environment (PlatformIO).
type BuildDir struct {
	Name string
	Path string
}

// ProjectSignal is an unresolved project match. MarkerFiles holds every
// marker that contributed to the match (project file plus build folders).
type ProjectSignal struct {
	Kind        Kind
	Root        string
	MarkerFiles []string
	BuildDirs   []BuildDir
}

const (
	platformioIni = "platformio.ini"
	iocExt        = ".ioc"
)

var (
	knownConfigs = map[string]bool{"debug": true, "release": true}
	buildMarkers = map[string]bool{"makefile": true, "objects.list": true}
	outputExts   = map[string]bool{".bin": true, ".hex": true, ".elf": true}
)

// IsOutputExt reports whether ext (with leading dot) is a firmware output
// extension. Matching is case-insensitive.
func IsOutputExt(ext string) bool {
	return outputExts[strings.ToLower(ext)]
}

func detect(fsys *safeio.SafeFS, dir string, entries []fs.DirEntry) []ProjectSignal {
	var out []ProjectSignal
	if s, ok := detectSTM32(fsys, dir, entries); ok {
		out = append(out, s)
	}
	if s, ok := detectPlatformIO(fsys, dir, entries); ok {
		out = append(out, s)
	}
	return out
}

func detectSTM32(fsys *safeio.SafeFS, dir string, entries []fs.DirEntry) (ProjectSignal, bool) {
	var markers []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), iocExt) {
			markers = append(markers, filepath.Join(dir, e.Name()))
		}
	}
	if len(markers) == 0 {
		return ProjectSignal{}, false
	}

	var builds []BuildDir
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		child := filepath.Join(dir, e.Name())
		if strings.EqualFold(e.Name(), "build") {
			builds = append(builds, cmakeBuildDirs(fsys, child)...)
			continue
		}
		if knownConfigs[strings.ToLower(e.Name())] || hasBuildOutput(fsys, child) {
			builds = append(builds, BuildDir{Name: e.Name(), Path: child})
		}
	}
	return newSignal(KindSTM32CubeIDE, dir, markers, builds), true
}

// cmakeBuildDirs handles the STM32 CMake layout where build/ holds one
// folder per configuration, or output directly for single-config builds.
func cmakeBuildDirs(fsys *safeio.SafeFS, buildDir string) []BuildDir {
	entries, err := fsys.SafeReadDir(buildDir)
	if err != nil {
		return nil
	}
	var out []BuildDir
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.EqualFold(e.Name(), "CMakeFiles") {
			continue
		}
		child := filepath.Join(buildDir, e.Name())
		if hasBuildOutput(fsys, child) {
			out = append(out, BuildDir{Name: e.Name(), Path: child})
		}
	}
	if len(out) == 0 && hasBuildOutput(fsys, buildDir) {
		out = append(out, BuildDir{Name: filepath.Base(buildDir), Path: buildDir})
	}
	return out
}

func detectPlatformIO(fsys *safeio.SafeFS, dir string, entries []fs.DirEntry) (ProjectSignal, bool) {
	found := false
	for _, e := range entries {
		if e.Type().IsRegular() && e.Name() == platformioIni {
			found = true
			break
		}
	}
	if !found {
		return ProjectSignal{}, false
	}

	markers := []string{filepath.Join(dir, platformioIni)}
	var builds []BuildDir
	envRoot := filepath.Join(dir, ".pio", "build")
	if envs, err := fsys.SafeReadDir(envRoot); err == nil {
		for _, e := range envs {
			if !e.IsDir() {
				continue
			}
			builds = append(builds, BuildDir{Name: e.Name(), Path: filepath.Join(envRoot, e.Name())})
		}
	}
	return newSignal(KindPlatformIO, dir, markers, builds), true
}

func newSignal(kind Kind, root string, markers []string, builds []BuildDir) ProjectSignal {
	sort.Slice(builds, func(i, j int) bool { return builds[i].Path < builds[j].Path })
	for _, b := range builds {
		markers = append(markers, b.Path)
	}
	sort.Strings(markers)
	return ProjectSignal{Kind: kind, Root: root, MarkerFiles: markers, BuildDirs: builds}
}

// hasBuildOutput reports whether dir directly holds a build marker file or a
// firmware output.
func hasBuildOutput(fsys *safeio.SafeFS, dir string) bool {
	entries, err := fsys.SafeReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := strings.ToLower(e.Name())
		if buildMarkers[name] || IsOutputExt(filepath.Ext(name)) {
			return true
		}
	}
	return false
}
