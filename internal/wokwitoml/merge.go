package wokwitoml

import (
	"fmt"
	"regexp"
	"strings"
)

// headerRe matches a table or array-of-tables header line.
var headerRe = regexp.MustCompile(`^\s*\[\[?\s*(.+?)\s*\]\]?\s*(?:#.*)?$`)

// tableRoot returns the first dotted segment of a header line, unquoted.
func tableRoot(line string) (string, bool) {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	name := m[1]
	if strings.HasPrefix(name, `"`) || strings.HasPrefix(name, "'") {
		q := name[:1]
		if end := strings.Index(name[1:], q); end >= 0 {
			return name[1 : end+1], true
		}
		return name, true
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name), true
}

func owned(root string) bool {
	return root == "wokwi" || root == "scanner"
}

// splice replaces the scanner-owned parts of text with region. Marked blocks
// are replaced in place. wokwi and scanner tables outside them (files written
// before markers existed) lose their header and key lines, and the region
// takes the place of the first one. Comments and blank lines trailing such a
// table belong to whatever follows and are kept. With no managed content the
// region is appended. Unbalanced or nested markers are an error: guessing
// where a block ends could delete user tables.
func splice(text, region string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return freshHeader + "\n\n" + region + "\n", nil
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	keep := make([]bool, len(lines))
	marked := make([]bool, len(lines))
	for i := range keep {
		keep[i] = true
	}
	insertAt := -1

	open := -1
	for i, l := range lines {
		switch strings.TrimSpace(l) {
		case BeginMarker:
			if open >= 0 {
				return "", fmt.Errorf("line %d: scanner block opened again before the block from line %d was closed", i+1, open+1)
			}
			open = i
		case EndMarker:
			if open < 0 {
				return "", fmt.Errorf("line %d: %q without a matching %q", i+1, EndMarker, BeginMarker)
			}
			for j := open; j <= i; j++ {
				marked[j] = true
				keep[j] = false
			}
			if insertAt < 0 {
				insertAt = open
			}
			open = -1
		}
	}
	if open >= 0 {
		return "", fmt.Errorf("line %d: %q is never closed by %q", open+1, BeginMarker, EndMarker)
	}
	haveBlock := insertAt >= 0

	for i := 0; i < len(lines); i++ {
		if marked[i] {
			continue
		}
		root, ok := tableRoot(lines[i])
		if !ok || !owned(root) {
			continue
		}
		last := i
		for j := i + 1; j < len(lines) && !marked[j]; j++ {
			if _, header := tableRoot(lines[j]); header {
				break
			}
			if isKeyLine(lines[j]) {
				last = j
			}
		}
		for j := i; j <= last; j++ {
			keep[j] = false
		}
		if !haveBlock && insertAt < 0 {
			insertAt = i
		}
		i = last
	}
	if insertAt < 0 {
		insertAt = len(lines)
	}

	var before, after []string
	for i, l := range lines {
		if !keep[i] {
			continue
		}
		if i < insertAt {
			before = append(before, l)
		} else {
			after = append(after, l)
		}
	}
	before = trimBlankTail(before)
	after = trimBlankHead(after)

	var b strings.Builder
	for _, l := range before {
		b.WriteString(l + "\n")
	}
	if len(before) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(region + "\n")
	if len(after) > 0 {
		b.WriteString("\n")
	}
	for _, l := range after {
		b.WriteString(l + "\n")
	}
	return b.String(), nil
}

// isKeyLine reports whether l carries table content rather than a comment
// or blank.
func isKeyLine(l string) bool {
	t := strings.TrimSpace(l)
	return t != "" && !strings.HasPrefix(t, "#")
}

func trimBlankTail(ls []string) []string {
	for len(ls) > 0 && strings.TrimSpace(ls[len(ls)-1]) == "" {
		ls = ls[:len(ls)-1]
	}
	return ls
}

func trimBlankHead(ls []string) []string {
	for len(ls) > 0 && strings.TrimSpace(ls[0]) == "" {
		ls = ls[1:]
	}
	return ls
}
