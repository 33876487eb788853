package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gzipi/gzipi/internal/codec"
	"github.com/gzipi/gzipi/internal/gzerr"
	"github.com/gzipi/gzipi/internal/indexbuilder"
	"github.com/gzipi/gzipi/internal/opener"
)

func newIndexCmd() *cobra.Command {
	var (
		rawIndexPath string
		indexPath    string
		bloomPath    string
		bloomFPRate  float64
		chunkRecords int
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "External-sort a raw index into the final sorted, compressed, deduplicated index",
		RunE: func(cmd *cobra.Command, args []string) error {
			var c codec.Codec
			if cmd.Flags().Changed("codec") {
				resolved, ok := codec.ByName(flagCodec)
				if !ok {
					return gzerr.Usage(nil, "index: unrecognized --codec "+flagCodec)
				}
				c = resolved
			} else {
				c = codec.ByExtension(indexPath)
			}

			store := opener.Local{}

			rawFile, err := store.OpenRead(rawIndexPath)
			if err != nil {
				return err
			}
			defer rawFile.Close()

			tempDir := flagTempDir
			if tempDir == "" {
				tempDir = os.TempDir()
			}

			b := indexbuilder.New(indexbuilder.Config{
				Codec:        c,
				TempDir:      tempDir,
				ChunkRecords: chunkRecords,
				BloomFPRate:  bloomFPRate,
			}, newLogger())

			if err := b.AddStream(rawFile); err != nil {
				return err
			}

			indexOut, err := store.OpenWrite(indexPath)
			if err != nil {
				return err
			}
			defer indexOut.Discard()

			result, err := b.Finalize(indexOut)
			if err != nil {
				return err
			}

			if err := indexOut.Close(); err != nil {
				return err
			}

			if bloomPath != "" && b.Bloom() != nil {
				if err := b.Bloom().Save(bloomPath); err != nil {
					return gzerr.IO(err, "index: saving bloom filter")
				}
			}

			newLogger().WithField("result", result).Info("index: done")
			return nil
		},
	}

	cmd.Flags().StringVar(&rawIndexPath, "raw-index", "", "raw index input path (required)")
	cmd.Flags().StringVar(&indexPath, "index", "", "final index output path (required)")
	cmd.Flags().StringVar(&bloomPath, "bloom", "", "optional bloom filter sidecar output path")
	cmd.Flags().Float64Var(&bloomFPRate, "bloom-fp-rate", 0.01, "bloom filter target false positive rate (0 disables it)")
	cmd.Flags().IntVar(&chunkRecords, "chunk-records", indexbuilder.DefaultChunkRecords, "entries buffered in memory per sort spill chunk")
	cmd.MarkFlagRequired("raw-index")
	cmd.MarkFlagRequired("index")

	return cmd
}
