// Package stream implements the pull-based chunk streams used to decode
// backend output before it reaches the caller.
//
// A Stream yields text chunks from Next until it returns io.EOF. Chunk
// boundaries carry no meaning: a stop sequence or an echoed role cue may be
// split across any number of chunks. Close releases the upstream source and
// may be called at any time, including before the stream is exhausted.
//
// Streams are owned by a single request and are not safe for concurrent use.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// Stream is a lazy, append-only sequence of text chunks.
type Stream interface {
	// Next returns the next chunk, or io.EOF once the stream is exhausted.
	Next(ctx context.Context) (string, error)
	// Close releases the upstream resources. It is idempotent.
	Close() error
}

// FromSlice returns a stream yielding the given chunks in order.
func FromSlice(chunks ...string) Stream {
	return &sliceStream{chunks: chunks}
}

type sliceStream struct {
	chunks []string
	pos    int
	closed bool
}

func (s *sliceStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.closed || s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// Result is a chunk or a terminal error delivered over a channel.
type Result struct {
	Chunk string
	Err   error
}

// FromChannel adapts a producer channel into a Stream. The producer must
// close the channel when done. cancel is called on Close so the producer can
// stop; it may be nil.
func FromChannel(ch <-chan Result, cancel func()) Stream {
	return &chanStream{ch: ch, cancel: cancel}
}

type chanStream struct {
	ch     <-chan Result
	cancel func()
	once   sync.Once
	done   bool
}

func (s *chanStream) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-s.ch:
		if !ok {
			s.done = true
			return "", io.EOF
		}
		if res.Err != nil {
			s.done = true
			return "", res.Err
		}
		return res.Chunk, nil
	}
}

func (s *chanStream) Close() error {
	s.once.Do(func() {
		s.done = true
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}

// Collect drains the stream and returns the emitted chunks. The stream is
// closed before returning.
func Collect(ctx context.Context, s Stream) ([]string, error) {
	defer s.Close()

	var out []string
	for {
		chunk, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, chunk)
	}
}

// ReadAll drains the stream and returns the concatenated text.
func ReadAll(ctx context.Context, s Stream) (string, error) {
	chunks, err := Collect(ctx, s)
	return strings.Join(chunks, ""), err
}
