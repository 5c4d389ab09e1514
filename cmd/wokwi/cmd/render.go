package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rananth45/wokwi-autoscript/internal/diagram"
	"github.com/rananth45/wokwi-autoscript/internal/pipeline"
)

type styles struct {
	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	name  lipgloss.Style
	muted lipgloss.Style
}

// stylesFor sizes colors to w so piped output stays plain.
func stylesFor(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		ok:    r.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		warn:  r.NewStyle().Foreground(lipgloss.Color("#FFB454")),
		fail:  r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		name:  r.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true),
		muted: r.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
	}
}

func renderScan(w io.Writer, res *pipeline.ScanResult) {
	s := stylesFor(w)
	verb := "wrote"
	if !res.Changed {
		verb = "unchanged"
	}
	fmt.Fprintf(w, "%s %s %s\n", s.ok.Render("✓"), verb, res.Path)

	base := filepath.Dir(res.Path)
	width := 0
	for _, g := range res.Config.Groups {
		width = max(width, len(g.Name))
	}
	for _, g := range res.Config.Groups {
		marker := " "
		if g.Name == res.Config.Primary {
			marker = "*"
		}
		rel, err := filepath.Rel(base, g.ArtifactPath)
		if err != nil {
			rel = g.ArtifactPath
		}
		fmt.Fprintf(w, "  %s %s  %-3s  %s  %s\n",
			marker,
			s.name.Render(fmt.Sprintf("%-*s", width, g.Name)),
			g.Format,
			filepath.ToSlash(rel),
			s.muted.Render(fmt.Sprintf("confidence %.2f", g.Confidence)))
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "%s %s\n", s.warn.Render("!"), warning.String())
	}
}

func renderDiagram(w io.Writer, doc *diagram.Document) {
	s := stylesFor(w)
	fmt.Fprintf(w, "%s wrote %s %s\n", s.ok.Render("✓"), doc.Path,
		s.muted.Render(fmt.Sprintf("(project %s, %d parts, %d connections)", doc.ProjectID, doc.Parts, doc.Connections)))
}

func renderError(w io.Writer, err error) {
	s := stylesFor(w)
	msg := strings.TrimSpace(err.Error())
	fmt.Fprintf(w, "%s %s\n", s.fail.Render("error:"), msg)
}
