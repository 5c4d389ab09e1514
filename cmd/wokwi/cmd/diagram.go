package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rananth45/wokwi-autoscript/internal/diagram"
	"github.com/rananth45/wokwi-autoscript/internal/pipeline"
)

func newDiagramCmd(a *app) *cobra.Command {
	var (
		output  string
		urlFile string
	)
	c := &cobra.Command{
		Use:     "diagram [url|id|file]",
		Aliases: []string{"fetch"},
		Short:   "Download a Wokwi project's diagram.json",
		Long: `diagram resolves a Wokwi project URL, a bare numeric project id, or a
file whose first line holds one, then downloads the project's diagram.json.
With no argument the reference is read from url.txt.

The output file is only written once the download validates.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 1 {
				raw = args[0]
			}
			f := diagram.NewFetcher(diagram.Options{
				Endpoint:       a.cfg.Fetch.Endpoint,
				MaxAttempts:    a.cfg.Fetch.MaxAttempts,
				AttemptTimeout: a.cfg.Fetch.AttemptTimeout,
				Backoff:        a.cfg.Fetch.Backoff,
				MaxBackoff:     a.cfg.Fetch.MaxBackoff,
			}, nil)
			doc, err := pipeline.FetchDiagram(cmd.Context(), raw, pipeline.DiagramOptions{
				Fetcher:    f,
				OutputFile: firstSet(output, a.cfg.DiagramFile),
				URLFile:    firstSet(urlFile, a.cfg.URLFile),
				Mirror:     a.mirror,
			})
			if err != nil {
				return err
			}
			renderDiagram(a.stdout, doc)
			return nil
		},
	}
	c.Flags().StringVarP(&output, "output", "o", "", "file to write (default \"diagram.json\")")
	c.Flags().StringVar(&urlFile, "url-file", "", "file read when no reference is given (default \"url.txt\")")
	return c
}
