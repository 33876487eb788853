package codec

import (
	"bytes"
	"io"
	"testing"
)

func TestZstdMemberRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	z := Zstd{}

	payloads := [][]byte{
		[]byte("hello\nworld\n"),
		[]byte(""),
		bytes.Repeat([]byte("y"), 20000),
	}

	var ranges []FrameRange
	for _, p := range payloads {
		start := int64(buf.Len())
		mw := z.OpenMemberWriter(&buf)
		if _, err := mw.Write(p); err != nil {
			t.Fatalf("Write: %v", err)
		}
		n, err := mw.FinishMember()
		if err != nil {
			t.Fatalf("FinishMember: %v", err)
		}
		ranges = append(ranges, FrameRange{Offset: start, Length: n})
	}

	for i, r := range ranges {
		rc, err := z.DecompressRange(bytes.NewReader(buf.Bytes()), r.Offset, r.Length)
		if err != nil {
			t.Fatalf("DecompressRange(%d): %v", i, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("ReadAll(%d): %v", i, err)
		}
		if !bytes.Equal(got, payloads[i]) {
			t.Errorf("member %d: got %q, want %q", i, got, payloads[i])
		}
	}
}

func TestZstdScanFramesDiscoversEveryMemberBoundary(t *testing.T) {
	var buf bytes.Buffer
	z := Zstd{}
	payloads := [][]byte{
		[]byte("member one"),
		bytes.Repeat([]byte("abcdef"), 8000),
		[]byte("last"),
	}
	var want []FrameRange
	for _, p := range payloads {
		start := int64(buf.Len())
		mw := z.OpenMemberWriter(&buf)
		mw.Write(p)
		n, _ := mw.FinishMember()
		want = append(want, FrameRange{Offset: start, Length: n})
	}

	got, err := z.ScanFrames(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ScanFrames: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}
