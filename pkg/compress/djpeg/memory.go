package djpeg

import (
	"errors"
	"fmt"
	"unsafe"
)

// pool is an allocation lifetime.
type pool int

const (
	poolPermanent pool = iota // lives as long as the Decompressor
	poolImage                 // released by Abort and FinishDecompress
	numPools
)

const (
	// maxAllocChunk bounds a single large allocation; row arrays are carved from chunks
	// of at most this size.
	maxAllocChunk = 1 << 20
	minSlab       = 16 << 10
)

// arena accounts for the decoder's working memory. All large buffers go through it so
// Options.MemoryLimit can be enforced before anything is allocated.
type arena struct {
	limit  int64
	used   [numPools]int64
	free   [numPools]int // unreserved bytes left in each pool's current slab
	budget int64

	factory BackingStoreFactory
	arrays  []*virtualBlockArray
}

func newArena(opts *Options) *arena {
	return &arena{
		limit:   opts.MemoryLimit,
		budget:  opts.MaxMemoryToUse,
		factory: opts.BackingStore,
	}
}

func (a *arena) total() int64 {
	var n int64
	for _, u := range a.used {
		n += u
	}
	return n
}

// charge records n bytes against pool p, failing when the limit would be exceeded.
func (a *arena) charge(p pool, n int64) error {
	if a.limit > 0 && a.total()+n > a.limit {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrOutOfMemory, n, a.total(), a.limit)
	}
	a.used[p] += n
	return nil
}

// small reserves n bytes for pool p from its current slab, charging a new slab of at
// least minSlab bytes when the current one is exhausted.
func (a *arena) small(p pool, n int) error {
	if n > maxAllocChunk {
		return fmt.Errorf("%w: small allocation of %d bytes", ErrInternal, n)
	}
	if a.free[p] < n {
		size := max(minSlab, n)
		if err := a.charge(p, int64(size)); err != nil {
			return err
		}
		a.free[p] = size
	}
	a.free[p] -= n
	return nil
}

// alloc returns a zeroed T whose size is reserved from pool p.
func alloc[T any](a *arena, p pool) (*T, error) {
	var zero T
	if err := a.small(p, int(unsafe.Sizeof(zero))); err != nil {
		return nil, err
	}
	return new(T), nil
}

// sampleRows allocates rows of width samples, several rows per chunk.
func (a *arena) sampleRows(p pool, width, rows int) ([][]byte, error) {
	width = max(width, 1)
	perChunk := max(1, maxAllocChunk/width)
	out := make([][]byte, rows)
	for r := 0; r < rows; {
		n := min(perChunk, rows-r)
		if err := a.charge(p, int64(n)*int64(width)); err != nil {
			return nil, err
		}
		chunk := make([]byte, n*width)
		for i := 0; i < n; i++ {
			out[r+i] = chunk[i*width : (i+1)*width : (i+1)*width]
		}
		r += n
	}
	return out, nil
}

// blockRows allocates rows of coefficient blocks, several rows per chunk.
func (a *arena) blockRows(p pool, blocksPerRow, rows int) ([][]block, error) {
	blocksPerRow = max(blocksPerRow, 1)
	rowBytes := blocksPerRow * blockBytes
	perChunk := max(1, maxAllocChunk/rowBytes)
	out := make([][]block, rows)
	for r := 0; r < rows; {
		n := min(perChunk, rows-r)
		if err := a.charge(p, int64(n)*int64(rowBytes)); err != nil {
			return nil, err
		}
		chunk := make([]block, n*blocksPerRow)
		for i := 0; i < n; i++ {
			out[r+i] = chunk[i*blocksPerRow : (i+1)*blocksPerRow : (i+1)*blocksPerRow]
		}
		r += n
	}
	return out, nil
}

// freePool drops everything allocated in p. Image-pool arrays close their backing stores.
func (a *arena) freePool(p pool) error {
	var errs []error
	if p == poolImage {
		for _, arr := range a.arrays {
			if err := arr.close(); err != nil {
				errs = append(errs, err)
			}
		}
		a.arrays = nil
	}
	a.used[p] = 0
	a.free[p] = 0
	return errors.Join(errs...)
}
