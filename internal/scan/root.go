package scan

import (
	"os"
	"path/filepath"
	"strings"
)

// FindRoot walks from start up through its parents and returns the first
// directory that holds an .ioc file or a platformio.ini.
func FindRoot(start string) (string, Kind, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", "", false
	}
	for {
		if kind, ok := markerKind(dir); ok {
			return dir, kind, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", false
		}
		dir = parent
	}
}

func markerKind(dir string) (Kind, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), iocExt) {
			return KindSTM32CubeIDE, true
		}
	}
	for _, e := range entries {
		if e.Type().IsRegular() && e.Name() == platformioIni {
			return KindPlatformIO, true
		}
	}
	return "", false
}
