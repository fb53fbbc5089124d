package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"sprint-academy/internal/logger"
	"sprint-academy/internal/sitemap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var manifestPath, outPath string
	cmd := &cobra.Command{
		Use:   "sitemap_generator",
		Short: "Generate sitemap.xml from the route manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New("dev")
			if err != nil {
				return err
			}
			defer log.Sync()
			return generate(log, manifestPath, outPath)
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "web/routes.json", "route manifest (JSON)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "web/static/sitemap.xml", "output file")
	return cmd
}

func generate(log *logger.Logger, manifestPath, outPath string) error {
	in, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer in.Close()

	m, err := sitemap.ReadManifest(in)
	if err != nil {
		return err
	}
	set := sitemap.Build(m)

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := outPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := sitemap.Write(out, set); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, outPath); err != nil {
		return fmt.Errorf("replace sitemap: %w", err)
	}

	log.Info("sitemap written", "path", outPath, "routes", len(m.Routes), "urls", len(set.URLs))
	return nil
}
