package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
	"github.com/rananth45/wokwi-autoscript/internal/pipeline"
	"github.com/rananth45/wokwi-autoscript/internal/scan"
)

func newSetupCmd(a *app) *cobra.Command {
	var (
		selectName string
		configFile string
		depth      int
	)
	c := &cobra.Command{
		Use:     "setup [project-root]",
		Aliases: []string{"scan", "config"},
		Short:   "Detect firmware build output and write wokwi.toml",
		Long: `setup scans a project tree for STM32CubeIDE (.ioc) and PlatformIO
(platformio.ini) projects, picks one firmware image per build configuration
and writes the managed region of wokwi.toml. Anything outside that region
is left as it was.

Without an argument the nearest enclosing project of the current directory
is used, or the current directory itself.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			probe := scan.DefaultOptions()
			if depth > 0 {
				probe.MaxDepth = depth
			} else if a.cfg.Scan.MaxDepth > 0 {
				probe.MaxDepth = a.cfg.Scan.MaxDepth
			}
			res, err := pipeline.Scan(cmd.Context(), root, pipeline.ScanOptions{
				ConfigFile:      firstSet(configFile, a.cfg.ConfigFile),
				Select:          selectName,
				Probe:           probe,
				AmbiguityWindow: a.cfg.Scan.AmbiguityWindow,
				Mirror:          a.mirror,
			})
			if err != nil {
				return err
			}
			renderScan(a.stdout, res)
			return nil
		},
	}
	c.Flags().StringVarP(&selectName, "select", "s", "", "firmware group to make primary")
	c.Flags().StringVarP(&configFile, "config-file", "c", "", "config file to write, relative to the project root (default \"wokwi.toml\")")
	c.Flags().IntVar(&depth, "depth", 0, "maximum directory depth to probe (default 4)")
	return c
}

func projectRoot(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "setup", err)
	}
	if root, _, ok := scan.FindRoot(cwd); ok {
		return root, nil
	}
	return cwd, nil
}
