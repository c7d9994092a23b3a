package djpeg

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const (
	readChunk      = 4096
	maxEmptyReads  = 100
	maxInsertedEOI = 4
)

// inputBuffer holds compressed bytes not yet committed by the decoder. Readers advance
// pos tentatively; commit moves mark up to pos, rewind drops an aborted attempt.
// Bytes before mark are never needed again.
type inputBuffer struct {
	data []byte
	pos  int
	mark int
	eof  bool
	src  io.Reader
	err  error

	insertedEOI int
	base        int64 // stream offset of data[0]
}

func (in *inputBuffer) commit() { in.mark = in.pos }
func (in *inputBuffer) rewind() { in.pos = in.mark }

// avail reports the bytes readable without another fill.
func (in *inputBuffer) avail() int { return len(in.data) - in.pos }

// offset converts a buffer index to a stream offset.
func (in *inputBuffer) offset(i int) int64 { return in.base + int64(i) }

func (in *inputBuffer) appendData(p []byte) {
	if in.mark > 0 && in.mark >= len(in.data)/2 {
		n := copy(in.data, in.data[in.mark:])
		in.data = in.data[:n]
		in.pos -= in.mark
		in.base += int64(in.mark)
		in.mark = 0
	}
	in.data = append(in.data, p...)
}

// Write appends compressed bytes. It never fails unless input was closed.
func (d *Decompressor) Write(p []byte) (int, error) {
	if d.in.eof {
		return 0, errors.New("djpeg: write after CloseInput")
	}
	d.in.appendData(p)
	return len(p), nil
}

// CloseInput marks the end of the compressed data. Further reads past the end see a
// synthetic EOI marker, which lets a truncated image finish with gray fill.
func (d *Decompressor) CloseInput() {
	d.in.eof = true
}

// SetSource switches the decoder to pull mode: bytes are read from r whenever the
// buffer runs dry. A Read returning (0, nil) suspends; io.EOF ends the data.
func (d *Decompressor) SetSource(r io.Reader) {
	d.in.src = r
}

// readMore appends whatever the pull source has; false means nothing arrived.
func (d *Decompressor) readMore() bool {
	in := &d.in
	if in.src == nil || in.eof || in.err != nil {
		return false
	}
	var buf [readChunk]byte
	for i := 0; i < maxEmptyReads; i++ {
		n, err := in.src.Read(buf[:])
		if n > 0 {
			in.appendData(buf[:n])
		}
		switch {
		case err == io.EOF:
			in.eof = true
			return n > 0
		case err != nil:
			in.err = err
			return n > 0
		case n > 0:
			return true
		}
	}
	return false
}

// fill makes at least one more byte available. false means the caller must suspend;
// a read error is kept in in.err and surfaces instead of ErrSuspended. Past the end of
// the data a synthetic EOI is supplied.
func (d *Decompressor) fill() bool {
	in := &d.in
	if in.pos < len(in.data) || d.readMore() {
		return true
	}
	if !in.eof || in.err != nil {
		return false
	}
	if in.insertedEOI >= maxInsertedEOI {
		in.err = fmt.Errorf("%w: %w", ErrCorrupt, io.ErrUnexpectedEOF)
		return false
	}
	in.insertedEOI++
	d.warn("premature end of JPEG data", slog.Int64("offset", in.offset(len(in.data))))
	in.data = append(in.data, 0xFF, byte(MarkerEOI))
	return true
}

// suspendErr converts a failed fill into the error the caller should see.
func (d *Decompressor) suspendErr() error {
	if d.in.err != nil {
		return d.in.err
	}
	return ErrSuspended
}

// readByte reads one byte tentatively.
func (d *Decompressor) readByte() (byte, bool) {
	if d.in.pos >= len(d.in.data) && !d.fill() {
		return 0, false
	}
	c := d.in.data[d.in.pos]
	d.in.pos++
	return c, true
}

// need makes n bytes readable without consuming them. Marker segments are never
// padded with a synthetic EOI: running out inside one is corrupt data.
func (d *Decompressor) need(n int) error {
	for d.in.avail() < n {
		if !d.readMore() {
			switch {
			case d.in.err != nil:
				return d.in.err
			case d.in.eof:
				return fmt.Errorf("%w: premature end of data inside marker segment", ErrCorrupt)
			default:
				return ErrSuspended
			}
		}
	}
	return nil
}

// be16 decodes a big-endian 16-bit value.
func be16(b []byte) int {
	return int(b[0])<<8 | int(b[1])
}
