package pipeline

import (
	"context"

	"github.com/rananth45/wokwi-autoscript/internal/artifact"
	"github.com/rananth45/wokwi-autoscript/internal/ctxlog"
	"github.com/rananth45/wokwi-autoscript/internal/diagram"
	"github.com/rananth45/wokwi-autoscript/internal/reference"
)

// DiagramOptions configures FetchDiagram.
type DiagramOptions struct {
	// Fetcher defaults to one with the stock retry policy.
	Fetcher *diagram.Fetcher
	// OutputFile defaults to diagram.json in the working directory.
	OutputFile string
	// URLFile is read when the reference is empty. Defaults to url.txt.
	URLFile string
	Mirror  artifact.Mirror
}

// FetchDiagram resolves raw to a project, downloads its diagram and writes
// it to OutputFile. Nothing is written unless the download validates.
func FetchDiagram(ctx context.Context, raw string, opts DiagramOptions) (*diagram.Document, error) {
	log := ctxlog.FromContext(ctx)

	var (
		ref reference.ProjectReference
		err error
	)
	if raw == "" {
		file := opts.URLFile
		if file == "" {
			file = "url.txt"
		}
		ref, err = reference.Default(file)
	} else {
		ref, err = reference.Normalize(raw)
	}
	if err != nil {
		return nil, err
	}
	log.Debug("pipeline: reference", "id", ref.ID, "source", string(ref.Source))

	f := opts.Fetcher
	if f == nil {
		f = diagram.NewFetcher(diagram.DefaultOptions(), nil)
	}
	doc, err := f.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	out := opts.OutputFile
	if out == "" {
		out = diagram.FileName
	}
	if err := f.Save(ctx, doc, out); err != nil {
		return nil, err
	}
	log.Info("pipeline: wrote diagram", "path", out, "id", ref.ID, "parts", doc.Parts, "connections", doc.Connections)

	mirror(ctx, opts.Mirror, "projects/"+ref.ID, diagram.FileName, doc.Raw)
	return doc, nil
}
