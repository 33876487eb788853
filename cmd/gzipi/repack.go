package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzipi/gzipi/internal/codec"
	"github.com/gzipi/gzipi/internal/gzerr"
	"github.com/gzipi/gzipi/internal/keyextract"
	"github.com/gzipi/gzipi/internal/opener"
	"github.com/gzipi/gzipi/internal/repacker"
)

func newRepackCmd() *cobra.Command {
	var (
		input             string
		archivePath       string
		rawIndexPath      string
		format            string
		field             string
		column            int
		delimiter         string
		memberRecordCount int
		strict            bool
	)

	cmd := &cobra.Command{
		Use:   "repack",
		Short: "Read newline-delimited records and write a block-compressed archive plus its raw index",
		RunE: func(cmd *cobra.Command, args []string) error {
			var c codec.Codec
			if cmd.Flags().Changed("codec") {
				resolved, ok := codec.ByName(flagCodec)
				if !ok {
					return gzerr.Usage(nil, "repack: unrecognized --codec "+flagCodec)
				}
				c = resolved
			} else {
				c = codec.ByExtension(archivePath)
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

			store := opener.Local{}

			in := io.Reader(os.Stdin)
			if input != "-" && input != "" {
				rc, err := store.OpenRead(input)
				if err != nil {
					return err
				}
				defer rc.Close()
				in = rc
			}

			archiveOut, err := store.OpenWrite(archivePath)
			if err != nil {
				return err
			}
			defer archiveOut.Discard()

			rawIndexOut, err := store.OpenWrite(rawIndexPath)
			if err != nil {
				return err
			}
			defer rawIndexOut.Discard()

			r := repacker.New(repacker.Config{
				Codec:             c,
				Extractor:         extractor,
				MemberRecordCount: memberRecordCount,
				Strict:            strict,
			}, newLogger())

			stats, err := r.Run(in, archiveOut, rawIndexOut)
			if err != nil {
				return err
			}

			if err := archiveOut.Close(); err != nil {
				return err
			}
			if err := rawIndexOut.Close(); err != nil {
				return err
			}

			newLogger().WithField("stats", stats).Info("repack: done")
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "-", "input path, or - for stdin")
	cmd.Flags().StringVar(&archivePath, "archive", "", "archive output path (required)")
	cmd.Flags().StringVar(&rawIndexPath, "raw-index", "", "raw index output path (required)")
	cmd.Flags().StringVar(&format, "format", "raw", "record format: json, csv, or raw")
	cmd.Flags().StringVar(&field, "field", "", "json: field name to extract as the key")
	cmd.Flags().IntVar(&column, "column", 0, "csv: 0-based column index to extract as the key")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "csv: column delimiter")
	cmd.Flags().IntVar(&memberRecordCount, "member-record-count", repacker.DefaultMemberRecordCount, "records per archive member")
	cmd.Flags().BoolVar(&strict, "strict", false, "abort on the first malformed record instead of skipping it")
	cmd.MarkFlagRequired("archive")
	cmd.MarkFlagRequired("raw-index")

	return cmd
}
