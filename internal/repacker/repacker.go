// Package repacker implements component D: reading a stream of
// newline-delimited records, grouping them into bounded-size members,
// stably sorting each member by key, and writing both the
// block-compressed archive and the per-member raw index entries that
// feed the index builder.
//
// Within one member every record shares the same (offset, length) —
// the member's own span — so once a member's keys are sorted,
// consecutive duplicates collapse to a single raw-index entry without
// losing any addressing information: every record for that key still
// lives in the one member the entry points at.
package repacker

import (
	"bufio"
	"bytes"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gzipi/gzipi/internal/codec"
	"github.com/gzipi/gzipi/internal/gzerr"
	"github.com/gzipi/gzipi/internal/keyextract"
	"github.com/gzipi/gzipi/internal/rawindex"
)

// DefaultMemberRecordCount is spec's default M: the number of
// records buffered, sorted, and written per archive member.
const DefaultMemberRecordCount = 1 << 14

// Config controls one repack run.
type Config struct {
	Codec             codec.Codec
	Extractor         *keyextract.Extractor
	MemberRecordCount int  // 0 uses DefaultMemberRecordCount
	Strict            bool // abort on the first malformed record instead of skipping it
}

// Stats summarizes a completed repack.
type Stats struct {
	RecordsRead    int64
	RecordsSkipped int64
	MembersWritten int64
	BytesWritten   int64
	DistinctKeys   int64
}

// Repacker streams records from a source into a freshly compressed,
// member-chunked archive plus the unsorted-across-members raw index
// that describes it.
type Repacker struct {
	cfg Config
	log *logrus.Entry
}

func New(cfg Config, log *logrus.Entry) *Repacker {
	if cfg.MemberRecordCount <= 0 {
		cfg.MemberRecordCount = DefaultMemberRecordCount
	}
	return &Repacker{cfg: cfg, log: log}
}

type bufferedRecord struct {
	key  []byte
	line []byte
}

// Run reads newline-delimited records from src, writes the
// compressed archive to archiveSink, and writes raw index entries
// (one per distinct key per member) to rawIndexSink.
func (r *Repacker) Run(src io.Reader, archiveSink io.Writer, rawIndexSink io.Writer) (Stats, error) {
	var stats Stats
	var archiveOffset int64

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	buf := make([]bufferedRecord, 0, r.cfg.MemberRecordCount)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		n, memberLen, err := r.writeMember(buf, archiveOffset, archiveSink, rawIndexSink)
		if err != nil {
			return err
		}
		stats.MembersWritten++
		stats.DistinctKeys += n
		stats.BytesWritten += memberLen
		archiveOffset += memberLen
		buf = buf[:0]
		return nil
	}

	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		stats.RecordsRead++

		key, err := r.cfg.Extractor.Extract(line)
		if err != nil {
			if gzErr, ok := err.(*gzerr.Error); ok && gzErr.Skipped && !r.cfg.Strict {
				stats.RecordsSkipped++
				r.log.WithError(err).Debug("repacker: skipping malformed record")
				continue
			}
			return stats, err
		}

		buf = append(buf, bufferedRecord{key: key, line: line})
		if len(buf) >= r.cfg.MemberRecordCount {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return stats, gzerr.IO(err, "repacker: reading input")
	}
	if err := flush(); err != nil {
		return stats, err
	}

	r.log.WithFields(logrus.Fields{
		"records_read":    stats.RecordsRead,
		"records_skipped": stats.RecordsSkipped,
		"members_written": stats.MembersWritten,
		"distinct_keys":   stats.DistinctKeys,
	}).Info("repacker: run complete")

	return stats, nil
}

// writeMember stable-sorts buf by key, writes every record to one
// fresh archive member, and emits one raw index entry per distinct
// key in that member. It returns the number of distinct keys and the
// member's compressed length.
func (r *Repacker) writeMember(buf []bufferedRecord, memberOffset int64, archiveSink, rawIndexSink io.Writer) (distinct int64, memberLen int64, err error) {
	sort.SliceStable(buf, func(i, j int) bool { return bytes.Compare(buf[i].key, buf[j].key) < 0 })

	mw := r.cfg.Codec.OpenMemberWriter(archiveSink)
	for _, rec := range buf {
		if _, err := mw.Write(rec.line); err != nil {
			return 0, 0, gzerr.IO(err, "repacker: writing record")
		}
		if _, err := mw.Write([]byte("\n")); err != nil {
			return 0, 0, gzerr.IO(err, "repacker: writing record separator")
		}
	}
	memberLen, err = mw.FinishMember()
	if err != nil {
		return 0, 0, err
	}

	var lastKey []byte
	for i, rec := range buf {
		if i > 0 && bytes.Equal(rec.key, lastKey) {
			continue
		}
		entry := rawindex.Entry{Key: rec.key, Offset: memberOffset, Length: memberLen}
		if _, err := rawIndexSink.Write(entry.Encode()); err != nil {
			return 0, 0, gzerr.IO(err, "repacker: writing raw index entry")
		}
		distinct++
		lastKey = rec.key
	}

	return distinct, memberLen, nil
}
