package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzipi/gzipi/internal/codec"
	"github.com/gzipi/gzipi/internal/gzerr"
	"github.com/gzipi/gzipi/internal/keyextract"
	"github.com/gzipi/gzipi/internal/retriever"
)

func newRetrieveCmd() *cobra.Command {
	var (
		archivePath string
		indexPath   string
		bloomPath   string
		cacheBytes  int64
		format      string
		field       string
		column      int
		delimiter   string
	)

	cmd := &cobra.Command{
		Use:   "retrieve <key> [key...]",
		Short: "Resolve keys to their archive member and print the matching record(s)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ok := codec.ByName(flagCodec)
			if !ok {
				return gzerr.Usage(nil, "retrieve: unrecognized --codec "+flagCodec)
			}

			var delim byte = ','
			if delimiter != "" {
				delim = delimiter[0]
			}
			extractor, err := keyextract.New(keyextract.Descriptor{
				Format:    keyextract.Format(format),
				Field:     field,
				Column:    column,
				Delimiter: delim,
			})
			if err != nil {
				return err
			}

			tempDir := flagTempDir
			if tempDir == "" {
				tempDir = os.TempDir()
			}

			r, err := retriever.Open(retriever.Config{
				ArchivePath: archivePath,
				IndexPath:   indexPath,
				BloomPath:   bloomPath,
				Codec:       c,
				Extractor:   extractor,
				TempDir:     tempDir,
				CacheBytes:  cacheBytes,
			}, newLogger())
			if err != nil {
				return err
			}
			defer r.Close()

			out := bufio.NewWriter(os.Stdout)
			defer out.Flush()

			missing := 0
			for _, key := range args {
				payload, ok, err := r.Get([]byte(key))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(os.Stderr, "gzipi: key not found: %s\n", key)
					missing++
					continue
				}
				out.Write(payload)
			}

			if missing > 0 {
				return gzerr.KeyNotFound
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&archivePath, "archive", "", "archive path (required)")
	cmd.Flags().StringVar(&indexPath, "index", "", "index path (required)")
	cmd.Flags().StringVar(&bloomPath, "bloom", "", "optional bloom filter sidecar path")
	cmd.Flags().Int64Var(&cacheBytes, "cache-bytes", 16<<20, "decompressed member cache budget in bytes (0 disables caching)")
	cmd.Flags().StringVar(&format, "format", "raw", "record format: json, csv, or raw")
	cmd.Flags().StringVar(&field, "field", "", "json: field name to extract as the key")
	cmd.Flags().IntVar(&column, "column", 0, "csv: 0-based column index to extract as the key")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "csv: column delimiter")
	cmd.MarkFlagRequired("archive")
	cmd.MarkFlagRequired("index")

	return cmd
}
