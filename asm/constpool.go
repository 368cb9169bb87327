package asm

// ConstPool is an append-only, deduplicating byte-constant pool consumed by
// BaseEmitter.EmbedConstPool (spec §4.2), grounded on asmjit's ConstPool:
// callers Add() raw constant payloads (immediates, floating-point bit
// patterns, jump tables) as they're discovered during code generation, and
// get back a stable byte offset within the pool; identical payloads share
// one slot instead of being duplicated.
type ConstPool struct {
	entries [][]byte
	offsets map[string]int
	size    int
}

// NewConstPool returns an empty pool.
func NewConstPool() *ConstPool {
	return &ConstPool{offsets: map[string]int{}}
}

// Add inserts data if an identical payload isn't already present, returning
// the byte offset it occupies (or will occupy once embedded).
func (p *ConstPool) Add(data []byte) int {
	key := string(data)
	if off, ok := p.offsets[key]; ok {
		return off
	}
	off := p.size
	p.offsets[key] = off
	p.entries = append(p.entries, data)
	p.size += len(data)
	return off
}

// Size returns the pool's total flattened byte length.
func (p *ConstPool) Size() int { return p.size }

// bytes concatenates every entry in insertion order, the layout
// EmbedConstPool writes into the current section.
func (p *ConstPool) bytes() []byte {
	out := make([]byte, 0, p.size)
	for _, e := range p.entries {
		out = append(out, e...)
	}
	return out
}
