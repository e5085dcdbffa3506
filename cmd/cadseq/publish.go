package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Sternrassler/cadseq/pkg/storage/s3"
	"github.com/spf13/cobra"
)

var publishPrefix string

var publishCmd = &cobra.Command{
	Use:   "publish <dir>",
	Short: "Upload a dataset directory to the configured bucket",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishPrefix, "prefix", "", "key prefix below s3.prefix (default: directory name)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	if cfg.S3.Bucket == "" {
		return errors.New("no bucket configured (set s3.bucket or CADSEQ_S3_BUCKET)")
	}

	publisher, err := s3.New(cmd.Context(), s3.Config{
		Bucket:    cfg.S3.Bucket,
		Prefix:    cfg.S3.Prefix,
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		PathStyle: cfg.S3.PathStyle,
	})
	if err != nil {
		return err
	}

	dir := args[0]
	prefix := firstNonEmpty(publishPrefix, filepath.Base(filepath.Clean(dir)))
	n, err := publisher.PublishDir(cmd.Context(), dir, prefix)
	if err != nil {
		return fmt.Errorf("publish failed after %d objects: %w", n, err)
	}
	cmd.Printf("Published %d objects to s3://%s/%s\n", n, cfg.S3.Bucket, publisher.Key(prefix, ""))
	return nil
}
