package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragchat/internal/ingest"
)

func newIngestCommand(cfgPath *string) *cobra.Command {
	var opts ingest.Options
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Chunk, embed and index documents into the vector store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), *cfgPath, args, opts)
		},
	}
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", ingest.DefaultChunkSize, "passage length in characters")
	cmd.Flags().IntVar(&opts.ChunkOverlap, "chunk-overlap", ingest.DefaultChunkOverlap, "characters shared by consecutive passages")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", ingest.DefaultBatchSize, "passages per embedding request")
	return cmd
}

func runIngest(ctx context.Context, cfgPath string, paths []string, opts ingest.Options) error {
	cfg, log, err := bootstrap(cfgPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	vectors, err := openVectorStore(cfg)
	if err != nil {
		return err
	}
	in, err := ingest.NewIngester(ctx, newEmbedder(cfg), vectors, log.Named("ingest"), opts)
	if err != nil {
		return err
	}
	stats, err := in.Ingest(ctx, paths)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	log.Info("ingestion finished",
		zap.String("collection", cfg.VectorStore.Collection),
		zap.Int("files", stats.Files),
		zap.Int("chunks", stats.Chunks),
	)
	return nil
}
