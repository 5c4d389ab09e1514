// Package diagram downloads a Wokwi project's diagram.json, checks its
// top-level shape and writes it to disk unmodified.
package diagram

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
)

// MaxBodyBytes bounds a downloaded body and an extracted diagram.
const MaxBodyBytes = 16 << 20

// FileName is the diagram entry inside a project archive.
const FileName = "diagram.json"

var zipMagic = []byte("PK\x03\x04")

// Document is a fetched and validated diagram.
type Document struct {
	ProjectID string
	// Raw is written to disk byte for byte.
	Raw         []byte
	Parts       int
	Connections int
	// Path is set once the document has been saved.
	Path string
}

// extract returns the diagram bytes carried by a response body: the
// diagram.json entry of a zip archive, the content of a project JSON that
// lists its files, or the body itself.
func extract(body []byte) ([]byte, error) {
	if bytes.HasPrefix(body, zipMagic) {
		return fromZip(body)
	}
	if raw, ok := fromProjectJSON(body); ok {
		return raw, nil
	}
	return body, nil
}

func fromZip(body []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	var best *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != FileName {
			continue
		}
		if best == nil || depth(f.Name) < depth(best.Name) {
			best = f
		}
	}
	if best == nil {
		return nil, fmt.Errorf("archive has no %s", FileName)
	}
	rc, err := best.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", best.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", best.Name, err)
	}
	if len(data) > MaxBodyBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", best.Name, MaxBodyBytes)
	}
	return data, nil
}

func depth(name string) int {
	return strings.Count(strings.Trim(name, "/"), "/")
}

type projectFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// fromProjectJSON handles the project API shape
// {"project": {"files": [{"name": "diagram.json", "content": "..."}]}}
// and its unwrapped {"files": [...]} form.
func fromProjectJSON(body []byte) ([]byte, bool) {
	var wrapper struct {
		Project *struct {
			Files []projectFile `json:"files"`
		} `json:"project"`
		Files []projectFile `json:"files"`
		Parts json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil || wrapper.Parts != nil {
		return nil, false
	}
	files := wrapper.Files
	if wrapper.Project != nil {
		files = append(files, wrapper.Project.Files...)
	}
	for _, f := range files {
		if f.Name == FileName {
			return []byte(f.Content), true
		}
	}
	return nil, false
}

// validate checks the top-level shape: a JSON object whose parts and
// connections are both non-empty arrays.
func validate(raw []byte) (parts, connections int, err error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return 0, 0, fmt.Errorf("not a JSON object: %w", err)
	}
	if top == nil {
		return 0, 0, fmt.Errorf("not a JSON object")
	}
	p, err := array(top, "parts")
	if err != nil {
		return 0, 0, err
	}
	if p == 0 {
		return 0, 0, fmt.Errorf("%q is empty", "parts")
	}
	c, err := array(top, "connections")
	if err != nil {
		return 0, 0, err
	}
	if c == 0 {
		return 0, 0, fmt.Errorf("%q is empty", "connections")
	}
	return p, c, nil
}

func array(top map[string]json.RawMessage, key string) (int, error) {
	v, ok := top[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}
	var items []json.RawMessage
	// null decodes to a nil slice without error; [] yields an empty one.
	if err := json.Unmarshal(v, &items); err != nil || items == nil {
		return 0, fmt.Errorf("%q is not an array", key)
	}
	return len(items), nil
}

// Decode extracts and validates a response body.
func Decode(projectID string, body []byte) (*Document, error) {
	const op = "diagram: decode"
	raw, err := extract(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, err).WithRef(projectID)
	}
	parts, conns, err := validate(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, err).WithRef(projectID)
	}
	return &Document{ProjectID: projectID, Raw: raw, Parts: parts, Connections: conns}, nil
}
