package main

import (
	"github.com/spf13/cobra"

	"github.com/local/flipbook/internal/config"
	"github.com/local/flipbook/internal/logger"
	"github.com/local/flipbook/internal/source"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "flipbook",
	Short: "Page-flip PDF viewer",
	Long: `Flipbook serves PDF documents as a book in the browser: one page or a
two-page spread at a time, with an animated page turn between views.

Configuration is read from the environment, after any .env files given
with --env (default: ./.env when present).`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(
		&envFiles, "env", nil, "dotenv files to load before the environment",
	)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pagesCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration and starts logging. Callers must defer
// logger.Close.
func setup() (config.Config, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return config.Config{}, err
	}
	err = logger.Init(logger.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	return cfg, err
}

func newFetcher(cfg config.Config) *source.Fetcher {
	var buckets []string
	if cfg.Source.S3Bucket != "" {
		buckets = []string{cfg.Source.S3Bucket}
	}
	return source.NewFetcher(source.Options{
		DocRoot:      cfg.Source.DocRoot,
		MaxBytes:     cfg.Source.MaxDocumentBytes,
		Timeout:      cfg.Source.FetchTimeout,
		Region:       cfg.Source.AWSRegion,
		AccessKey:    cfg.Source.AWSAccessKeyID,
		SecretKey:    cfg.Source.AWSSecretAccessKey,
		AllowedHosts: cfg.Source.AllowedURLHosts,
		AllowPrivate: cfg.Source.AllowPrivateURLs,
		Buckets:      buckets,
	})
}
