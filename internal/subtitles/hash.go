package subtitles

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// moviehash chunk size per the OpenSubtitles algorithm.
const hashChunkSize = 64 * 1024

// ComputeIdentity derives the lookup identity for a container file: its size,
// display name, and OpenSubtitles moviehash.
func ComputeIdentity(path string) (FileIdentity, error) {
	file, err := os.Open(path)
	if err != nil {
		return FileIdentity{}, fmt.Errorf("open for hashing: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return FileIdentity{}, fmt.Errorf("stat for hashing: %w", err)
	}

	hash, err := movieHash(file, info.Size())
	if err != nil {
		return FileIdentity{}, err
	}

	return FileIdentity{
		Path:        path,
		DisplayName: filepath.Base(path),
		Size:        info.Size(),
		Hash:        hash,
	}, nil
}

// movieHash implements the OpenSubtitles checksum: file size plus the
// little-endian uint64 sum of the first and last 64 KiB, modulo 2^64.
func movieHash(reader io.ReadSeeker, size int64) (string, error) {
	if size < hashChunkSize {
		return "", fmt.Errorf("file too small for moviehash: %d bytes", size)
	}

	sum := uint64(size)

	head := make([]byte, hashChunkSize)
	if _, err := io.ReadFull(reader, head); err != nil {
		return "", fmt.Errorf("read head chunk: %w", err)
	}
	sum += sumChunk(head)

	if _, err := reader.Seek(size-hashChunkSize, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek tail chunk: %w", err)
	}
	tail := make([]byte, hashChunkSize)
	if _, err := io.ReadFull(reader, tail); err != nil {
		return "", fmt.Errorf("read tail chunk: %w", err)
	}
	sum += sumChunk(tail)

	return fmt.Sprintf("%016x", sum), nil
}

func sumChunk(chunk []byte) uint64 {
	var sum uint64
	for offset := 0; offset+8 <= len(chunk); offset += 8 {
		sum += binary.LittleEndian.Uint64(chunk[offset:])
	}
	return sum
}
