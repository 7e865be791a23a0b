// Package streambuf provides a chunked byte buffer for reassembling data that
// arrives from a stream transport in arbitrarily sized pieces.
package streambuf

// Buffer accumulates byte chunks and hands them back from the front. Chunks are
// retained as written; bytes are copied only when a read or peek spans more
// than one chunk.
//
// Buffer is not safe for concurrent use; it is owned by a single connection.
type Buffer struct {
	chunks [][]byte
	length int
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Write appends chunk to the buffer. The buffer keeps a reference to chunk, so
// callers must not modify it afterwards. Empty chunks are ignored.
//
// Parameters:
//   - chunk: The bytes to append
func (b *Buffer) Write(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	b.chunks = append(b.chunks, chunk)
	b.length += len(chunk)
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	return b.length
}

// Read removes and returns up to n bytes from the front of the buffer. It
// returns fewer bytes when fewer are buffered. When the result lies within the
// first chunk it shares memory with that chunk.
//
// Parameters:
//   - n: Maximum number of bytes to read
//
// Returns:
//   - The bytes read, empty (non-nil) when nothing was read
func (b *Buffer) Read(n int) []byte {
	n = b.clamp(n)
	if n == 0 {
		return []byte{}
	}

	first := b.chunks[0]
	if n <= len(first) {
		out := first[:n:n]
		b.consume(n)
		return out
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		head := b.chunks[0]
		need := n - len(out)
		if need >= len(head) {
			out = append(out, head...)
			b.dropHead()
			continue
		}

		out = append(out, head[:need]...)
		b.chunks[0] = head[need:]
		b.length -= need
	}

	return out
}

// Peek returns up to n bytes from the front of the buffer without removing
// them. The result must be treated as read-only.
//
// Parameters:
//   - n: Maximum number of bytes to return
//
// Returns:
//   - The leading bytes, empty (non-nil) when the buffer is empty or n is 0
func (b *Buffer) Peek(n int) []byte {
	n = b.clamp(n)
	if n == 0 {
		return []byte{}
	}

	first := b.chunks[0]
	if n <= len(first) {
		return first[:n:n]
	}

	out := make([]byte, 0, n)
	for _, chunk := range b.chunks {
		need := n - len(out)
		if need <= len(chunk) {
			out = append(out, chunk[:need]...)
			break
		}
		out = append(out, chunk...)
	}

	return out
}

// IndexFunc scans the buffered bytes starting at offset from and returns the
// offset of the first byte for which fn returns true, or -1. No bytes are
// copied or consumed.
//
// Parameters:
//   - from: Offset of the first byte to inspect
//   - fn: Predicate called for each byte in order
//
// Returns:
//   - The offset of the matching byte, or -1 if none matched
func (b *Buffer) IndexFunc(from int, fn func(c byte) bool) int {
	if from < 0 {
		from = 0
	}

	base := 0
	for _, chunk := range b.chunks {
		if from >= base+len(chunk) {
			base += len(chunk)
			continue
		}

		start := 0
		if from > base {
			start = from - base
		}

		for i := start; i < len(chunk); i++ {
			if fn(chunk[i]) {
				return base + i
			}
		}
		base += len(chunk)
	}

	return -1
}

func (b *Buffer) clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > b.length {
		return b.length
	}

	return n
}

// consume drops n bytes that are known to lie within the first chunk.
func (b *Buffer) consume(n int) {
	head := b.chunks[0]
	if n == len(head) {
		b.dropHead()
		return
	}

	b.chunks[0] = head[n:]
	b.length -= n
}

func (b *Buffer) dropHead() {
	b.length -= len(b.chunks[0])
	b.chunks[0] = nil
	b.chunks = b.chunks[1:]
	if len(b.chunks) == 0 {
		b.chunks = nil
	}
}
