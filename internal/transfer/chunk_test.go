package transfer

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestSplitChunkSizes(t *testing.T) {
	tests := []struct {
		size int
		want []int
	}{
		{2496000, []int{1048576, 1048576, 398848}},
		{2621440, []int{1048576, 1048576, 524288}},
		{DefaultChunkSize, []int{1048576}},
	}

	for _, tt := range tests {
		chunks := Split(pattern(tt.size), DefaultChunkSize, "report.pdf")
		if len(chunks) != len(tt.want) {
			t.Fatalf("size %d: got %d chunks; want %d", tt.size, len(chunks), len(tt.want))
		}
		for i, c := range chunks {
			if len(c.Data) != tt.want[i] {
				t.Errorf("size %d chunk %d: %d bytes; want %d", tt.size, i, len(c.Data), tt.want[i])
			}
			if c.ChunkID != uint64(i) || c.TotalChunks != uint64(len(tt.want)) ||
				c.FileSize != uint64(tt.size) || c.FileName != "report.pdf" {
				t.Errorf("size %d chunk %d: bad metadata", tt.size, i)
			}
		}
	}
}

func TestChunkCount(t *testing.T) {
	tests := []struct {
		size      uint64
		chunkSize int
		want      uint64
	}{
		{0, 1024, 0},
		{1, 1024, 1},
		{1024, 1024, 1},
		{1025, 1024, 2},
		{2621440, DefaultChunkSize, 3},
		{10, 0, 1},
	}

	for _, tt := range tests {
		if got := ChunkCount(tt.size, tt.chunkSize); got != tt.want {
			t.Errorf("ChunkCount(%d, %d) = %d; want %d", tt.size, tt.chunkSize, got, tt.want)
		}
	}
}

func TestSplitMergeRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 7, 64, 1000, 4096, 4097}
	chunkSizes := []int{1, 3, 64, 1024}

	for _, size := range sizes {
		for _, cs := range chunkSizes {
			data := pattern(size)
			chunks := Split(data, cs, "f")

			if uint64(len(chunks)) != ChunkCount(uint64(size), cs) {
				t.Fatalf("size %d/%d: %d chunks", size, cs, len(chunks))
			}

			rand.Shuffle(len(chunks), func(i, j int) {
				chunks[i], chunks[j] = chunks[j], chunks[i]
			})

			got, err := Merge(chunks)
			if err != nil {
				t.Fatalf("size %d/%d: Merge: %v", size, cs, err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("size %d/%d: merged data differs", size, cs)
			}
		}
	}
}

func TestMergeEmpty(t *testing.T) {
	got, err := Merge(nil)
	if err != nil {
		t.Fatalf("Merge(nil): %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Merge(nil) returned %d bytes", len(got))
	}
}

func TestMergeRejectsBadSets(t *testing.T) {
	base := func() []FileChunk {
		return Split(pattern(30), 10, "f")
	}

	tests := []struct {
		name   string
		mutate func([]FileChunk) []FileChunk
		want   error
	}{
		{
			name:   "missing",
			mutate: func(c []FileChunk) []FileChunk { return append(c[:1], c[2:]...) },
			want:   serrors.ErrMissingChunk,
		},
		{
			name: "duplicate",
			mutate: func(c []FileChunk) []FileChunk {
				c[2] = c[1]
				return c
			},
			want: serrors.ErrDuplicateChunk,
		},
		{
			name: "out of range",
			mutate: func(c []FileChunk) []FileChunk {
				c[2].ChunkID = 7
				return c
			},
			want: serrors.ErrChunkOutOfRange,
		},
		{
			name: "short data",
			mutate: func(c []FileChunk) []FileChunk {
				c[1].Data = c[1].Data[:5]
				return c
			},
			want: serrors.ErrSizeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(tt.mutate(base()))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Merge error = %v; want %v", err, tt.want)
			}
			if !serrors.IsFile(err) {
				t.Errorf("expected FileError, got %T", err)
			}
		})
	}
}

func TestMergeExpectMissing(t *testing.T) {
	chunks := Split(pattern(30), 10, "f")
	_, err := MergeExpect(3, 30, []FileChunk{chunks[0], chunks[2]})
	if !errors.Is(err, serrors.ErrMissingChunk) {
		t.Fatalf("got %v; want ErrMissingChunk", err)
	}
}

func TestChunkerSourceLengthMismatch(t *testing.T) {
	short := NewChunker(bytes.NewReader(pattern(15)), 20, 10, "short")
	if _, err := short.Next(); err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	if _, err := short.Next(); !errors.Is(err, serrors.ErrSizeMismatch) {
		t.Fatalf("short source: got %v; want ErrSizeMismatch", err)
	}

	long := NewChunker(bytes.NewReader(pattern(25)), 20, 10, "long")
	for i := 0; i < 2; i++ {
		if _, err := long.Next(); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
	}
	if _, err := long.Next(); !errors.Is(err, serrors.ErrSizeMismatch) {
		t.Fatalf("long source: got %v; want ErrSizeMismatch", err)
	}

	exact := NewChunker(bytes.NewReader(pattern(20)), 20, 10, "exact")
	for i := 0; i < 2; i++ {
		if _, err := exact.Next(); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
	}
	if _, err := exact.Next(); err != io.EOF {
		t.Fatalf("exact source: got %v; want io.EOF", err)
	}
}
