package rawindex

import "testing"

func BenchmarkEncode(b *testing.B) {
	e := Entry{Key: []byte("test_key_1234567890"), Offset: 12345, Length: 67890}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = e.Encode()
	}
}

func BenchmarkDecode(b *testing.B) {
	line := Entry{Key: []byte("test_key_1234567890"), Offset: 12345, Length: 67890}.Encode()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := Decode(line); err != nil {
			b.Fatal(err)
		}
	}
}
