// Package artifact mirrors persisted documents (wokwi.toml, diagram.json) to
// shared storage so a team can see what a scan or download produced. The
// local file stays the source of truth; the mirror is write-only.
package artifact

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rananth45/wokwi-autoscript/internal/config"
)

// Mirror receives a copy of each document a pipeline persists. Putting the
// same content under the same key again is a no-op.
type Mirror interface {
	Put(ctx context.Context, namespace, name string, content []byte) error
}

// Key joins namespace and name into a slash-separated object key such as
// "projects/123/diagram.json". Empty parts and ".." segments are rejected.
func Key(namespace, name string) (string, error) {
	ns := strings.Trim(strings.TrimSpace(namespace), "/")
	n := strings.Trim(strings.TrimSpace(name), "/")
	if ns == "" {
		return "", fmt.Errorf("artifact: namespace is required")
	}
	if n == "" {
		return "", fmt.Errorf("artifact: name is required")
	}
	key := ns + "/" + n
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return "", fmt.Errorf("artifact: invalid key %q", key)
		}
	}
	return key, nil
}

// contentType picks a MIME type from the document name.
func contentType(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json"
	case ".toml":
		return "application/toml"
	default:
		return "application/octet-stream"
	}
}

// Open returns the configured mirror, or nil when mirroring is off. A
// bucket endpoint wins over a local directory.
func Open(c config.ArtifactConfig) (Mirror, error) {
	if !c.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		m, err := NewDirMirror(c.Dir)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	m, err := NewS3Mirror(S3ConfigFrom(c))
	if err != nil {
		return nil, err
	}
	return m, nil
}
