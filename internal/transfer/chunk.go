package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
)

// DefaultChunkSize is 1 MiB.
const DefaultChunkSize = 1024 * 1024

type FileChunk struct {
	ChunkID     uint64
	Data        []byte
	TotalChunks uint64
	FileName    string
	FileSize    uint64
}

// ChunkCount returns how many chunks of chunkSize cover size bytes.
func ChunkCount(size uint64, chunkSize int) uint64 {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	cs := uint64(chunkSize)
	return (size + cs - 1) / cs
}

// Chunker cuts a byte stream of known size into FileChunks without holding
// more than one chunk in memory.
type Chunker struct {
	r         io.Reader
	name      string
	size      uint64
	chunkSize int
	total     uint64
	next      uint64
}

func NewChunker(r io.Reader, size uint64, chunkSize int, name string) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunker{
		r:         r,
		name:      name,
		size:      size,
		chunkSize: chunkSize,
		total:     ChunkCount(size, chunkSize),
	}
}

func (c *Chunker) Total() uint64 {
	return c.total
}

// Next returns the next chunk, or io.EOF once all of them were produced. A
// source shorter or longer than the declared size is a FileError.
func (c *Chunker) Next() (FileChunk, error) {
	if c.next >= c.total {
		if err := c.checkDrained(); err != nil {
			return FileChunk{}, err
		}
		return FileChunk{}, io.EOF
	}

	n := uint64(c.chunkSize)
	if remain := c.size - c.next*uint64(c.chunkSize); remain < n {
		n = remain
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: source ended before %d bytes", serrors.ErrSizeMismatch, c.size)
		}
		return FileChunk{}, serrors.File("read chunk", c.name, err)
	}

	chunk := FileChunk{
		ChunkID:     c.next,
		Data:        buf,
		TotalChunks: c.total,
		FileName:    c.name,
		FileSize:    c.size,
	}
	c.next++

	return chunk, nil
}

func (c *Chunker) checkDrained() error {
	var probe [1]byte
	n, err := c.r.Read(probe[:])
	if n > 0 {
		return serrors.File("read chunk", c.name,
			fmt.Errorf("%w: source longer than %d bytes", serrors.ErrSizeMismatch, c.size))
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return serrors.File("read chunk", c.name, err)
	}
	return nil
}

// Split cuts data into chunkSize pieces; the last one may be shorter.
func Split(data []byte, chunkSize int, name string) []FileChunk {
	c := newBytesChunker(data, chunkSize, name)

	chunks := make([]FileChunk, 0, c.Total())
	for {
		chunk, err := c.Next()
		if err != nil {
			break
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func newBytesChunker(data []byte, chunkSize int, name string) *Chunker {
	return NewChunker(bytes.NewReader(data), uint64(len(data)), chunkSize, name)
}

// Merge reassembles chunks using the metadata they carry.
func Merge(chunks []FileChunk) ([]byte, error) {
	if len(chunks) == 0 {
		return []byte{}, nil
	}
	return MergeExpect(chunks[0].TotalChunks, chunks[0].FileSize, chunks)
}

// MergeExpect sorts chunks by id and concatenates them after checking that
// ids 0..total-1 each appear exactly once and that the result is size bytes.
func MergeExpect(total, size uint64, chunks []FileChunk) ([]byte, error) {
	name := ""
	if len(chunks) > 0 {
		name = chunks[0].FileName
	}

	sorted := make([]FileChunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ChunkID < sorted[j].ChunkID
	})

	for i, chunk := range sorted {
		if chunk.TotalChunks != total {
			return nil, serrors.File("merge", name, fmt.Errorf("%w: chunk %d claims %d chunks, expected %d",
				serrors.ErrChunkCountMismatch, chunk.ChunkID, chunk.TotalChunks, total))
		}
		if chunk.ChunkID >= total {
			return nil, serrors.File("merge", name, fmt.Errorf("%w: chunk %d of %d",
				serrors.ErrChunkOutOfRange, chunk.ChunkID, total))
		}
		if i > 0 && sorted[i-1].ChunkID == chunk.ChunkID {
			return nil, serrors.File("merge", name, fmt.Errorf("%w: chunk %d",
				serrors.ErrDuplicateChunk, chunk.ChunkID))
		}
	}

	for i := range sorted {
		if sorted[i].ChunkID != uint64(i) {
			return nil, serrors.File("merge", name, fmt.Errorf("%w: chunk %d", serrors.ErrMissingChunk, i))
		}
	}
	if uint64(len(sorted)) != total {
		return nil, serrors.File("merge", name, fmt.Errorf("%w: chunk %d", serrors.ErrMissingChunk, len(sorted)))
	}

	var n uint64
	for _, chunk := range sorted {
		n += uint64(len(chunk.Data))
	}
	if n != size {
		return nil, serrors.File("merge", name, fmt.Errorf("%w: got %d bytes, expected %d",
			serrors.ErrSizeMismatch, n, size))
	}

	data := make([]byte, 0, n)
	for _, chunk := range sorted {
		data = append(data, chunk.Data...)
	}
	return data, nil
}
