package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultEmptyReplacement is emitted when decoding produced no text at all.
const DefaultEmptyReplacement = " "

// Decode chains the decode stages in their fixed order:
// LStrip, RemovePrefix(echoedCue), StopAt(stops), EnsureNotEmpty(" ").
func Decode(raw Stream, stops []string, echoedCue string) Stream {
	s := LStrip(raw)
	s = RemovePrefix(s, echoedCue)
	s = StopAt(s, stops)
	return EnsureNotEmpty(s, DefaultEmptyReplacement)
}

// LStrip suppresses leading whitespace-only chunks and strips the leading
// whitespace of the first chunk that has content.
func LStrip(up Stream) Stream {
	return &lstrip{up: up}
}

type lstrip struct {
	up      Stream
	started bool
}

func (s *lstrip) Next(ctx context.Context) (string, error) {
	if s.started {
		return s.up.Next(ctx)
	}
	for {
		chunk, err := s.up.Next(ctx)
		if err != nil {
			return "", err
		}
		trimmed := strings.TrimLeftFunc(chunk, unicode.IsSpace)
		if trimmed == "" {
			continue
		}
		s.started = true
		return trimmed, nil
	}
}

func (s *lstrip) Close() error { return s.up.Close() }

// RemovePrefix strips prefix from the start of the stream. Chunks are held
// until at least len(prefix) bytes arrived; if the stream ends first the
// partial buffer is flushed unchanged.
func RemovePrefix(up Stream, prefix string) Stream {
	if prefix == "" {
		return up
	}
	return &removePrefix{up: up, prefix: prefix}
}

type removePrefix struct {
	up       Stream
	prefix   string
	buf      strings.Builder
	resolved bool
	eof      bool
}

func (s *removePrefix) Next(ctx context.Context) (string, error) {
	if s.eof {
		return "", io.EOF
	}
	if s.resolved {
		return s.up.Next(ctx)
	}
	for {
		chunk, err := s.up.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.resolved = true
			s.eof = true
			if s.buf.Len() == 0 {
				return "", io.EOF
			}
			return s.buf.String(), nil
		}
		if err != nil {
			return "", err
		}

		s.buf.WriteString(chunk)
		if s.buf.Len() < len(s.prefix) {
			continue
		}

		s.resolved = true
		rest := strings.TrimPrefix(s.buf.String(), s.prefix)
		s.buf.Reset()
		if rest == "" {
			return s.up.Next(ctx)
		}
		return rest, nil
	}
}

func (s *removePrefix) Close() error { return s.up.Close() }

// StopAt truncates the stream before the earliest occurrence of any of the
// given sequences and stops pulling from upstream once one is found.
//
// The last max(len(seq))-1 bytes are always held back so a sequence split
// across chunks is never partially committed.
func StopAt(up Stream, sequences []string) Stream {
	seqs := make([]string, 0, len(sequences))
	maxLen := 0
	for _, seq := range sequences {
		if seq == "" {
			continue
		}
		seqs = append(seqs, seq)
		maxLen = max(maxLen, len(seq))
	}
	if len(seqs) == 0 {
		return up
	}
	return &stopAt{up: up, seqs: seqs, hold: maxLen - 1}
}

type stopAt struct {
	up   Stream
	seqs []string
	hold int
	buf  string
	done bool

	closed   bool
	closeErr error
}

func (s *stopAt) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		chunk, err := s.up.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.done = true
			out := s.buf
			if idx, _ := s.match(); idx >= 0 {
				out = s.buf[:idx]
			}
			s.buf = ""
			if out == "" {
				return "", io.EOF
			}
			return out, nil
		}
		if err != nil {
			return "", err
		}

		s.buf += chunk

		if idx, final := s.match(); idx >= 0 {
			if !final {
				// A longer sequence starting earlier may still complete.
				continue
			}
			s.done = true
			out := s.buf[:idx]
			s.buf = ""
			s.closeUpstream()
			if out == "" {
				return "", io.EOF
			}
			return out, nil
		}

		commit := len(s.buf) - s.hold
		for commit > 0 && commit < len(s.buf) && !utf8.RuneStart(s.buf[commit]) {
			commit--
		}
		if commit <= 0 {
			continue
		}
		out := s.buf[:commit]
		s.buf = s.buf[commit:]
		return out, nil
	}
}

// match returns the start of the earliest complete occurrence in the buffer,
// or -1. final is false when some sequence could still complete at an
// earlier position once more text arrives.
func (s *stopAt) match() (idx int, final bool) {
	idx = -1
	for _, seq := range s.seqs {
		if i := strings.Index(s.buf, seq); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	if idx < 0 {
		return -1, false
	}
	for j := 0; j < idx; j++ {
		tail := s.buf[j:]
		for _, seq := range s.seqs {
			if len(tail) < len(seq) && strings.HasPrefix(seq, tail) {
				return idx, false
			}
		}
	}
	return idx, true
}

// closeUpstream closes up at most once and keeps the result for Close.
func (s *stopAt) closeUpstream() {
	if s.closed {
		return
	}
	s.closed = true
	s.closeErr = s.up.Close()
}

func (s *stopAt) Close() error {
	s.closeUpstream()
	return s.closeErr
}

// EnsureNotEmpty emits def once at the end if every chunk seen was empty.
func EnsureNotEmpty(up Stream, def string) Stream {
	return &ensureNotEmpty{up: up, def: def}
}

type ensureNotEmpty struct {
	up      Stream
	def     string
	nonZero bool
	done    bool
}

func (s *ensureNotEmpty) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}
	chunk, err := s.up.Next(ctx)
	if errors.Is(err, io.EOF) {
		s.done = true
		if !s.nonZero {
			s.nonZero = true
			return s.def, nil
		}
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if chunk != "" {
		s.nonZero = true
	}
	return chunk, nil
}

func (s *ensureNotEmpty) Close() error { return s.up.Close() }
