package repacker

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/gzipi/gzipi/internal/gzerr"
	"github.com/gzipi/gzipi/internal/rawindex"
)

// Reindex rebuilds the raw index for an already-chunked archive
// without rewriting a single byte of it: it walks the archive's
// existing frame boundaries and re-extracts keys from each member's
// records, which is all the index builder needs to produce a fresh
// index for an archive whose member layout is already final (for
// example after a member_record_count change would otherwise force a
// full repack).
func (r *Repacker) Reindex(archivePath string, rawIndexSink io.Writer) (Stats, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return Stats{}, gzerr.IO(err, "repacker: opening archive for reindex")
	}
	defer f.Close()

	frames, err := r.cfg.Codec.ScanFrames(f)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, fr := range frames {
		n, skipped, err := r.reindexMember(f, fr.Offset, fr.Length, rawIndexSink)
		stats.RecordsSkipped += skipped
		if err != nil {
			return stats, err
		}
		stats.MembersWritten++
		stats.DistinctKeys += n
		stats.BytesWritten += fr.Length
	}

	r.log.WithFields(logrus.Fields{
		"members_written": stats.MembersWritten,
		"distinct_keys":   stats.DistinctKeys,
	}).Info("repacker: reindex complete")

	return stats, nil
}

func (r *Repacker) reindexMember(f *os.File, offset, length int64, rawIndexSink io.Writer) (distinct, skipped int64, err error) {
	rc, err := r.cfg.Codec.DecompressRange(f, offset, length)
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	seen := make(map[string]struct{})

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		key, err := r.cfg.Extractor.Extract(line)
		if err != nil {
			if gzErr, ok := err.(*gzerr.Error); ok && gzErr.Skipped && !r.cfg.Strict {
				skipped++
				continue
			}
			return 0, skipped, err
		}
		if _, dup := seen[string(key)]; dup {
			continue
		}
		seen[string(key)] = struct{}{}

		entry := rawindex.Entry{Key: bytes.Clone(key), Offset: offset, Length: length}
		if _, err := rawIndexSink.Write(entry.Encode()); err != nil {
			return 0, skipped, gzerr.IO(err, "repacker: writing reindex entry")
		}
		distinct++
	}
	if err := sc.Err(); err != nil {
		return 0, skipped, gzerr.Codec(err, "repacker: reading member during reindex")
	}

	return distinct, skipped, nil
}
