// Package firmware turns project signals into concrete, disambiguated
// firmware groups: one selectable image per build configuration or
// PlatformIO environment, scored by how confidently it was chosen.
package firmware

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
	"github.com/rananth45/wokwi-autoscript/internal/scan"
)

// Format is the container format of a firmware image.
type Format string

const (
	FormatBIN Format = "BIN"
	FormatHEX Format = "HEX"
	FormatELF Format = "ELF"
)

// preference orders formats for the loadable image: lower wins.
var preference = map[Format]int{FormatBIN: 0, FormatHEX: 1, FormatELF: 2}

// FormatOf maps a file extension to its Format.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin":
		return FormatBIN, true
	case ".hex":
		return FormatHEX, true
	case ".elf":
		return FormatELF, true
	}
	return "", false
}

// Group is one detected, disambiguated build-output artifact.
type Group struct {
	Name         string
	Kind         scan.Kind
	ArtifactPath string
	Format       Format
	// ElfPath is the ELF companion sharing the artifact's stem, if any. It
	// equals ArtifactPath when the image itself is an ELF.
	ElfPath     string
	BuildConfig string
	// Confidence is 1.0 for an unambiguous pick and lower when competing
	// artifacts were built close together in time.
	Confidence float64
	BuiltAt    time.Time
	// ProjectRoot is the signal root the group came from.
	ProjectRoot string
}

// Ambiguous reports whether the group was chosen among several candidates.
func (g Group) Ambiguous() bool { return g.Confidence < 1.0 }

// Warning is a non-fatal observation made while resolving.
type Warning struct {
	Kind    apperr.Kind
	Path    string
	Message string
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Kind.String() + ": " + w.Message
	}
	return w.Kind.String() + ": " + w.Message + " (" + w.Path + ")"
}
