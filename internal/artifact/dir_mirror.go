package artifact

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rananth45/wokwi-autoscript/internal/safeio"
)

// DirMirror copies documents into a local directory tree, typically a
// synced or shared folder. Keys map to paths below the root.
type DirMirror struct {
	root string
}

func NewDirMirror(root string) (*DirMirror, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("artifact: mirror directory is required")
	}
	return &DirMirror{root: root}, nil
}

// Path returns where a document lands below the root.
func (m *DirMirror) Path(namespace, name string) (string, error) {
	key, err := Key(namespace, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.root, filepath.FromSlash(key)), nil
}

// Put writes content atomically unless the file already holds it.
func (m *DirMirror) Put(_ context.Context, namespace, name string, content []byte) error {
	p, err := m.Path(namespace, name)
	if err != nil {
		return err
	}
	if cur, err := os.ReadFile(p); err == nil && bytes.Equal(cur, content) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	if err := safeio.WriteFileAtomic(p, content, 0o644); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	return nil
}
