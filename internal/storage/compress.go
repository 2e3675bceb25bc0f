package storage

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressedStore zstd-compresses archives on the way into another store.
type CompressedStore struct {
	ArchiveStore
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressedStore wraps inner.
func NewCompressedStore(inner ArchiveStore) (*CompressedStore, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &CompressedStore{ArchiveStore: inner, encoder: enc, decoder: dec}, nil
}

// Put compresses data and stores it.
func (s *CompressedStore) Put(ctx context.Context, ref ArchiveRef, data []byte) error {
	return s.ArchiveStore.Put(ctx, ref, s.encoder.EncodeAll(data, nil))
}

// Get loads and decompresses an archive.
func (s *CompressedStore) Get(ctx context.Context, ref ArchiveRef) ([]byte, error) {
	compressed, err := s.ArchiveStore.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return data, nil
}

// Close releases codec resources and the wrapped store.
func (s *CompressedStore) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.ArchiveStore.Close()
}
