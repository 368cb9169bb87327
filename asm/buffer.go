package asm

// CodeBuffer is a growable byte vector belonging to exactly one Section.
// Grounded on the teacher's asm.CodeSegment/Buffer (internal/asm/buffer.go):
// same append/grow-by-doubling discipline, generalized to an in-memory
// (non-mmap) buffer since CodeHolder's job ends at producing bytes and
// relocations, not mapping them executable (spec §1 excludes the JIT
// allocator).
type CodeBuffer struct {
	data []byte
}

// NewCodeBuffer returns an empty, ready-to-use CodeBuffer.
func NewCodeBuffer() *CodeBuffer {
	return &CodeBuffer{data: make([]byte, 0, 256)}
}

// Len returns the number of bytes written so far.
func (b *CodeBuffer) Len() int { return len(b.data) }

// Bytes returns the buffer's contents. The slice is invalidated by the next
// mutating call.
func (b *CodeBuffer) Bytes() []byte { return b.data }

// Truncate shrinks the buffer to n bytes; n must be <= Len().
func (b *CodeBuffer) Truncate(n int) { b.data = b.data[:n] }

// Append reserves n bytes at the end of the buffer and returns them for the
// caller to fill in, growing the backing array by doubling if needed.
func (b *CodeBuffer) Append(n int) []byte {
	i := len(b.data)
	j := i + n
	if j > cap(b.data) {
		b.grow(n)
	}
	b.data = b.data[:j]
	return b.data[i:j:j]
}

// WriteByte appends a single byte.
func (b *CodeBuffer) WriteByte(v byte) error {
	b.data = append(b.data, v)
	return nil
}

// Write appends p, implementing io.Writer.
func (b *CodeBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// PadZero appends n zero bytes.
func (b *CodeBuffer) PadZero(n int) {
	dst := b.Append(n)
	for i := range dst {
		dst[i] = 0
	}
}

func (b *CodeBuffer) grow(n int) {
	want := len(b.data) + n
	size := cap(b.data)
	if size == 0 {
		size = 256
	}
	for size < want {
		size *= 2
	}
	grown := make([]byte, len(b.data), size)
	copy(grown, b.data)
	b.data = grown
}
