// Package reference turns user input naming a Wokwi project (a project URL,
// a bare numeric ID, or a file holding either) into a project identifier.
// Normalization is purely local; nothing here touches the network.
package reference

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
)

// Source records which input form produced a reference.
type Source string

const (
	SourceURL    Source = "URL"
	SourceBareID Source = "BARE_ID"
	SourceFile   Source = "FILE"
)

// ProjectPage is the public page of a project, used as the Referer of
// download requests.
const ProjectPage = "https://wokwi.com/projects/"

var (
	urlRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://\S*?/projects/(\d+)(?:[/?#]\S*)?$`)
	idRe  = regexp.MustCompile(`^\d+$`)
)

// ProjectReference is a normalized reference. ID is always one or more
// decimal digits.
type ProjectReference struct {
	Raw    string
	ID     string
	Source Source
	// File is the file the ID was read from when Source is FILE.
	File string
}

// PageURL returns the project's public page.
func (r ProjectReference) PageURL() string { return ProjectPage + r.ID }

func (r ProjectReference) String() string {
	return fmt.Sprintf("%s (%s)", r.ID, r.Source)
}

// Normalize resolves raw by trying, in order: a project URL, a bare ID, and a
// path to a file whose first non-empty line is a URL or bare ID. Files are
// followed one level only.
func Normalize(raw string) (ProjectReference, error) {
	const op = "reference: normalize"
	in := strings.TrimSpace(raw)
	if in == "" {
		return ProjectReference{}, apperr.New(apperr.KindReference, op, "empty reference")
	}
	if id, src, ok := direct(in); ok {
		return ProjectReference{Raw: raw, ID: id, Source: src}, nil
	}

	line, err := firstLine(in)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ProjectReference{}, apperr.New(apperr.KindReference, op,
				"not a project URL, numeric ID, or existing file").WithRef(in)
		}
		return ProjectReference{}, apperr.Wrap(apperr.KindReference, op, err).WithRef(in).WithPath(in)
	}
	id, _, ok := direct(line)
	if !ok {
		return ProjectReference{}, apperr.New(apperr.KindReference, op,
			fmt.Sprintf("first line %q is not a project URL or numeric ID", truncate(line, 80))).WithPath(in)
	}
	return ProjectReference{Raw: raw, ID: id, Source: SourceFile, File: in}, nil
}

// Default resolves the reference stored in file, the launcher's fallback
// when no reference is given on the command line.
func Default(file string) (ProjectReference, error) {
	if _, err := os.Stat(file); err != nil {
		return ProjectReference{}, apperr.New(apperr.KindReference, "reference: default",
			"no reference given and no reference file found").WithPath(file)
	}
	return Normalize(file)
}

func direct(s string) (string, Source, bool) {
	if m := urlRe.FindStringSubmatch(s); m != nil {
		return m[1], SourceURL, true
	}
	if idRe.MatchString(s) {
		return s, SourceBareID, true
	}
	return "", "", false
}

func firstLine(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("file is empty")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
