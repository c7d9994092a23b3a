package djpeg

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
)

// BackingStore holds the rows of a coefficient array that do not fit in memory.
type BackingStore interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// BackingStoreFactory creates a store able to hold size bytes.
type BackingStoreFactory func(size int64) (BackingStore, error)

// blockBytes is the stored size of one coefficient block.
const blockBytes = 64 * 2

// virtualBlockArray is a coefficient array accessed a few block rows at a time. It is
// either fully resident or a window of rows over a BackingStore.
type virtualBlockArray struct {
	rows, blocksPerRow int
	maxAccess          int
	preZero            bool

	buf        [][]block
	window     int // rows resident in buf
	first      int // array row held in buf[0]
	firstUndef int // rows from here on were never written
	dirty      bool

	store   BackingStore
	scratch []byte
}

// requestBlockArray registers an array; storage is assigned by realizeVirtualArrays.
func (a *arena) requestBlockArray(blocksPerRow, rows, maxAccess int, preZero bool) *virtualBlockArray {
	v := &virtualBlockArray{
		rows:         rows,
		blocksPerRow: blocksPerRow,
		maxAccess:    maxAccess,
		preZero:      preZero,
	}
	a.arrays = append(a.arrays, v)
	return v
}

// realizeVirtualArrays allocates every requested array, spilling the ones that do not
// fit the memory budget when a backing store is available.
func (a *arena) realizeVirtualArrays(log *slog.Logger) error {
	var perMinHeight, maximum int64
	for _, v := range a.arrays {
		if v.buf != nil {
			continue
		}
		rowBytes := int64(v.blocksPerRow) * blockBytes
		perMinHeight += int64(v.maxAccess) * rowBytes
		maximum += int64(v.rows) * rowBytes
	}
	if perMinHeight <= 0 {
		return nil
	}

	maxMinHeights := int64(1) << 30
	if a.factory != nil && a.budget > 0 {
		avail := a.budget - a.total()
		if maximum > avail {
			maxMinHeights = max(1, avail/perMinHeight)
		}
	}

	for _, v := range a.arrays {
		if v.buf != nil {
			continue
		}
		minHeights := int64((v.rows-1)/v.maxAccess + 1)
		v.window = v.rows
		if minHeights > maxMinHeights {
			v.window = int(maxMinHeights) * v.maxAccess
			size := int64(v.rows) * int64(v.blocksPerRow) * blockBytes
			st, err := a.factory(size)
			if err != nil {
				return fmt.Errorf("%w: backing store: %w", ErrOutOfMemory, err)
			}
			v.store = st
			v.scratch = make([]byte, v.blocksPerRow*blockBytes)
			log.Debug("coefficient array spilled to backing store",
				slog.Int("rows", v.rows), slog.Int("window", v.window), slog.Int64("bytes", size))
		}
		buf, err := a.blockRows(poolImage, v.blocksPerRow, v.window)
		if err != nil {
			return err
		}
		v.buf = buf
		v.first = 0
		v.firstUndef = 0
		v.dirty = false
	}
	return nil
}

// access returns block rows [start, start+n). Writable access marks them defined.
func (v *virtualBlockArray) access(start, n int, writable bool) ([][]block, error) {
	end := start + n
	if v.buf == nil || start < 0 || n < 0 || end > v.rows || n > v.maxAccess {
		return nil, fmt.Errorf("%w: bad virtual array access rows %d..%d of %d", ErrInternal, start, end, v.rows)
	}

	if start < v.first || end > v.first+v.window {
		if v.store == nil {
			return nil, fmt.Errorf("%w: virtual array window lost", ErrInternal)
		}
		if v.dirty {
			if err := v.transfer(true); err != nil {
				return nil, err
			}
			v.dirty = false
		}
		if start > v.first {
			v.first = start
		} else {
			v.first = max(0, end-v.window)
		}
		if err := v.transfer(false); err != nil {
			return nil, err
		}
	}

	if v.firstUndef < end {
		undef := v.firstUndef
		if undef < start {
			if writable {
				return nil, fmt.Errorf("%w: virtual array writer skipped rows %d..%d", ErrInternal, undef, start)
			}
			undef = start
		}
		if writable {
			v.firstUndef = end
		}
		if v.preZero {
			for r := undef; r < end; r++ {
				clear(v.buf[r-v.first])
			}
		} else if !writable {
			return nil, fmt.Errorf("%w: read of undefined virtual array rows", ErrInternal)
		}
	}
	if writable {
		v.dirty = true
	}
	return v.buf[start-v.first : end-v.first], nil
}

// transfer writes the window to the store, or loads it from there. Only rows that were
// ever defined take part.
func (v *virtualBlockArray) transfer(write bool) error {
	count := min(v.window, v.firstUndef-v.first, v.rows-v.first)
	rowBytes := int64(v.blocksPerRow) * blockBytes
	for i := 0; i < count; i++ {
		off := int64(v.first+i) * rowBytes
		row := v.buf[i]
		if write {
			for b := range row {
				for k, c := range row[b] {
					binary.LittleEndian.PutUint16(v.scratch[b*blockBytes+2*k:], uint16(c))
				}
			}
			if _, err := v.store.WriteAt(v.scratch, off); err != nil {
				return fmt.Errorf("%w: backing store write: %w", ErrOutOfMemory, err)
			}
			continue
		}
		if _, err := v.store.ReadAt(v.scratch, off); err != nil {
			return fmt.Errorf("%w: backing store read: %w", ErrOutOfMemory, err)
		}
		for b := range row {
			for k := range row[b] {
				row[b][k] = int16(binary.LittleEndian.Uint16(v.scratch[b*blockBytes+2*k:]))
			}
		}
	}
	return nil
}

func (v *virtualBlockArray) close() error {
	v.buf = nil
	if v.store == nil {
		return nil
	}
	err := v.store.Close()
	v.store = nil
	return err
}
