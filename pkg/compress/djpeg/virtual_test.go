package djpeg

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillRow(row []block, r int) {
	for b := range row {
		for k := range row[b] {
			row[b][k] = int16(r*1000 + b*64 + k - 3000)
		}
	}
}

func TestVirtualArraySpillRoundTrip(t *testing.T) {
	var stores []*memStore
	a := newArena(&Options{
		MaxMemoryToUse: 1,
		BackingStore: func(size int64) (BackingStore, error) {
			s := &memStore{data: make([]byte, size)}
			stores = append(stores, s)
			return s, nil
		},
	})
	v := a.requestBlockArray(3, 10, 2, true)
	require.NoError(t, a.realizeVirtualArrays(slog.Default()))
	require.Len(t, stores, 1)
	assert.Equal(t, 2, v.window)

	for r := 0; r < 10; r += 2 {
		rows, err := v.access(r, 2, true)
		require.NoError(t, err)
		fillRow(rows[0], r)
		fillRow(rows[1], r+1)
	}
	for r := 8; r >= 0; r -= 2 {
		rows, err := v.access(r, 2, false)
		require.NoError(t, err)
		for i, row := range rows {
			want := make([]block, 3)
			fillRow(want, r+i)
			require.Equal(t, want, row, "row %d", r+i)
		}
	}

	require.NoError(t, a.freePool(poolImage))
	assert.True(t, stores[0].closed)
}

func TestVirtualArrayPreZero(t *testing.T) {
	a := newArena(&Options{})
	v := a.requestBlockArray(2, 4, 4, true)
	require.NoError(t, a.realizeVirtualArrays(slog.Default()))
	assert.Nil(t, v.store)

	rows, err := v.access(0, 4, false)
	require.NoError(t, err)
	for _, row := range rows {
		assert.Equal(t, make([]block, 2), row)
	}
}

func TestVirtualArrayMisuse(t *testing.T) {
	a := newArena(&Options{})
	v := a.requestBlockArray(2, 6, 2, false)
	require.NoError(t, a.realizeVirtualArrays(slog.Default()))

	_, err := v.access(5, 2, true)
	assert.ErrorIs(t, err, ErrInternal, "past the end")
	_, err = v.access(0, 3, true)
	assert.ErrorIs(t, err, ErrInternal, "more than maxAccess rows")
	_, err = v.access(2, 2, true)
	assert.ErrorIs(t, err, ErrInternal, "writer skipped rows")
	_, err = v.access(0, 2, false)
	assert.ErrorIs(t, err, ErrInternal, "read before write")

	_, err = v.access(0, 2, true)
	assert.NoError(t, err)
	_, err = v.access(0, 2, false)
	assert.NoError(t, err)
}

func TestArenaLimit(t *testing.T) {
	a := newArena(&Options{MemoryLimit: 4096})
	_, err := a.sampleRows(poolImage, 1024, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3072), a.total())

	_, err = a.sampleRows(poolImage, 1024, 2)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	require.NoError(t, a.freePool(poolImage))
	assert.Zero(t, a.total())
	_, err = a.blockRows(poolPermanent, 4, 8)
	assert.NoError(t, err)
}

func TestSmallObjectPools(t *testing.T) {
	a := newArena(&Options{})
	q, err := alloc[[64]uint16](a, poolPermanent)
	require.NoError(t, err)
	assert.Equal(t, [64]uint16{}, *q)
	assert.Equal(t, int64(minSlab), a.used[poolPermanent], "first object opens a slab")
	_, err = alloc[huffTable](a, poolPermanent)
	require.NoError(t, err)
	assert.Equal(t, int64(minSlab), a.used[poolPermanent], "second object fits the same slab")

	_, err = alloc[derivedTable](a, poolImage)
	require.NoError(t, err)
	require.NoError(t, a.freePool(poolImage))
	assert.Zero(t, a.used[poolImage])
	assert.Equal(t, int64(minSlab), a.used[poolPermanent])

	assert.ErrorIs(t, a.small(poolImage, maxAllocChunk+1), ErrInternal)
	_, err = alloc[huffTable](newArena(&Options{MemoryLimit: 1024}), poolPermanent)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestTablesUseLifetimePools(t *testing.T) {
	d := NewDecompressor(nil)
	_, err := d.Write(newTestFrame(grayFrame(16, 16)).baseline())
	require.NoError(t, err)
	d.CloseInput()
	_, err = d.ReadHeader(true)
	require.NoError(t, err)
	permanent := d.mem.used[poolPermanent]
	assert.Positive(t, permanent, "DQT and DHT tables")

	require.NoError(t, d.StartDecompress())
	rows := make([][]byte, 16)
	for i := range rows {
		rows[i] = make([]byte, 16)
	}
	for d.OutputScanline() < d.OutputHeight() {
		_, err = d.ReadScanlines(rows[d.OutputScanline():])
		require.NoError(t, err)
	}
	assert.NotNil(t, d.dcDerived[0])
	assert.Positive(t, d.mem.used[poolImage])

	require.NoError(t, d.FinishDecompress())
	assert.Zero(t, d.mem.used[poolImage])
	assert.Nil(t, d.dcDerived[0], "derived tables go with the image")
	assert.Equal(t, permanent, d.mem.used[poolPermanent])

	_, err = DecodeBytes(newTestFrame(grayFrame(16, 16)).baseline(), &Options{MemoryLimit: 512})
	assert.ErrorIs(t, err, ErrOutOfMemory)
}
