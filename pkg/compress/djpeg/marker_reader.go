package djpeg

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
)

const (
	numQuantTables = 4
	numHuffTables  = 4
	numArithTables = 16
	maxComponents  = 10
	maxCompsInScan = 4
	maxSampFactor  = 4
	maxBlocksInMCU = 10
	maxDimension   = 65500

	app0PrefixLen  = 14 // JFIF fields up to the thumbnail size
	app14PrefixLen = 12 // Adobe fields up to the transform flag
)

// Segment locates one marker in the stream.
type Segment struct {
	Marker Marker
	Offset int64 // offset of the marker's 0xFF
	Length int   // value of the length field, 0 for markers without one
}

// markerState is the marker reader's position between calls.
type markerState struct {
	sawSOI, sawSOF bool
	// nextRestart is the index of the RSTn expected next in the current scan.
	nextRestart int
	// discarded counts garbage bytes skipped while looking for a marker.
	discarded int
	// skip is the unread remainder of an APPn/COM/DNL segment being skipped.
	skip         int
	length       int
	markerOffset int64
}

// readMarkers processes markers until SOS or EOI. Each segment is consumed whole or not
// at all, so a suspended call can simply be repeated.
func (d *Decompressor) readMarkers() (Progress, error) {
	for {
		if d.mr.skip > 0 {
			if err := d.skipSegment(); err != nil {
				return 0, err
			}
			d.noteSegment()
			d.unreadMarker = 0
		}
		if d.unreadMarker == 0 {
			var err error
			if !d.mr.sawSOI {
				err = d.firstMarker()
			} else {
				err = d.nextMarker()
			}
			if err != nil {
				return 0, err
			}
		}

		var err error
		switch m := d.unreadMarker; {
		case m == MarkerSOI:
			err = d.readSOI()
		case m == MarkerSOF0, m == MarkerSOF1:
			err = d.readSOF(false, false)
		case m == MarkerSOF2:
			err = d.readSOF(true, false)
		case m == MarkerSOF9:
			err = d.readSOF(false, true)
		case m == MarkerSOF10:
			err = d.readSOF(true, true)
		case m == MarkerSOF3, m >= MarkerSOF5 && m <= MarkerJPG, m == MarkerSOF11,
			m >= MarkerSOF13 && m <= MarkerSOF15:
			return 0, fmt.Errorf("%w: %s frames (lossless or hierarchical)", ErrUnsupported, m)
		case m == MarkerSOS:
			if err := d.readSOS(); err != nil {
				d.in.rewind()
				return 0, err
			}
			d.in.commit()
			d.noteSegment()
			d.unreadMarker = 0
			return ProgressReachedSOS, nil
		case m == MarkerEOI:
			d.trace("end of image")
			d.noteSegment()
			d.unreadMarker = 0
			return ProgressReachedEOI, nil
		case m == MarkerDAC:
			err = d.readDAC()
		case m == MarkerDHT:
			err = d.readDHT()
		case m == MarkerDQT:
			err = d.readDQT()
		case m == MarkerDRI:
			err = d.readDRI()
		case m.IsAPP(), m == MarkerCOM, m == MarkerDNL:
			err = d.readVariable(m)
		case m.IsRST(), m == MarkerTEM:
			d.trace("parameterless marker", slog.String("marker", m.String()))
		default:
			return 0, fmt.Errorf("%w: unknown marker %s", ErrCorrupt, m)
		}
		if err != nil {
			d.in.rewind()
			return 0, err
		}
		d.in.commit()
		if d.mr.skip > 0 {
			continue
		}
		d.noteSegment()
		d.unreadMarker = 0
	}
}

func (d *Decompressor) noteSegment() {
	d.segments = append(d.segments, Segment{
		Marker: d.unreadMarker,
		Offset: d.mr.markerOffset,
		Length: d.mr.length,
	})
	d.mr.length = 0
}

// firstMarker requires the stream to start with SOI; anything else is not a JPEG.
func (d *Decompressor) firstMarker() error {
	if err := d.need(2); err != nil {
		if errors.Is(err, ErrCorrupt) {
			return fmt.Errorf("%w: stream too short", ErrNotJPEG)
		}
		return err
	}
	in := &d.in
	c, c2 := in.data[in.pos], in.data[in.pos+1]
	if c != 0xFF || Marker(c2) != MarkerSOI {
		return fmt.Errorf("%w: starts with 0x%02x 0x%02x", ErrNotJPEG, c, c2)
	}
	d.mr.markerOffset = in.offset(in.pos)
	in.pos += 2
	in.commit()
	d.unreadMarker = MarkerSOI
	return nil
}

// nextMarker finds the next marker, skipping garbage and fill bytes. Every discarded
// byte is committed, so a suspension never rescans it.
func (d *Decompressor) nextMarker() error {
	in := &d.in
	var c byte
	var ok bool
	for {
		if c, ok = d.readByte(); !ok {
			in.rewind()
			return d.suspendErr()
		}
		for c != 0xFF {
			d.mr.discarded++
			in.commit()
			if c, ok = d.readByte(); !ok {
				in.rewind()
				return d.suspendErr()
			}
		}
		for c == 0xFF {
			if c, ok = d.readByte(); !ok {
				in.rewind()
				return d.suspendErr()
			}
		}
		if c != 0 {
			break
		}
		// FF 00 is stuffed data, not a marker
		d.mr.discarded += 2
		in.commit()
	}
	if d.mr.discarded != 0 {
		d.warn("corrupt JPEG data: extraneous bytes before marker",
			slog.Int("bytes", d.mr.discarded), slog.String("marker", Marker(c).String()))
		d.mr.discarded = 0
	}
	d.unreadMarker = Marker(c)
	d.mr.markerOffset = in.offset(in.pos - 2)
	in.commit()
	return nil
}

// segment reads a complete length-prefixed segment and returns its payload. The slice
// aliases the input buffer and is only valid until the next read.
func (d *Decompressor) segment() ([]byte, error) {
	if err := d.need(2); err != nil {
		return nil, err
	}
	in := &d.in
	n := be16(in.data[in.pos:])
	if n < 2 {
		return nil, fmt.Errorf("%w: bad %s length %d", ErrCorrupt, d.unreadMarker, n)
	}
	if err := d.need(n); err != nil {
		return nil, err
	}
	seg := in.data[in.pos+2 : in.pos+n]
	in.pos += n
	d.mr.length = n
	return seg, nil
}

func (d *Decompressor) readSOI() error {
	if d.mr.sawSOI {
		return fmt.Errorf("%w: duplicate SOI", ErrCorrupt)
	}
	d.trace("start of image")

	for i := range d.arithDCL {
		d.arithDCL[i] = 0
		d.arithDCU[i] = 1
		d.arithACK[i] = 5
	}
	d.hdr.RestartInterval = 0
	d.hdr.ColorSpace = ColorUnknown
	d.hdr.SawJFIF = false
	d.hdr.JFIFMajor, d.hdr.JFIFMinor = 1, 1
	d.hdr.DensityUnit = 0
	d.hdr.XDensity, d.hdr.YDensity = 1, 1
	d.hdr.SawAdobe = false
	d.hdr.AdobeTransform = 0

	d.mr.sawSOI = true
	return nil
}

func (d *Decompressor) readSOF(progressive, arith bool) error {
	if d.mr.sawSOF {
		return fmt.Errorf("%w: duplicate SOF", ErrCorrupt)
	}
	seg, err := d.segment()
	if err != nil {
		return err
	}
	if len(seg) < 6 {
		return fmt.Errorf("%w: bad SOF length %d", ErrCorrupt, len(seg)+2)
	}
	precision := int(seg[0])
	height, width := be16(seg[1:]), be16(seg[3:])
	n := int(seg[5])
	d.trace("start of frame", slog.String("marker", d.unreadMarker.String()),
		slog.Int("width", width), slog.Int("height", height),
		slog.Int("precision", precision), slog.Int("components", n))

	if width == 0 || height == 0 || n == 0 {
		return fmt.Errorf("%w: empty image", ErrCorrupt)
	}
	if len(seg) != 6+3*n {
		return fmt.Errorf("%w: bad SOF length %d for %d components", ErrCorrupt, len(seg)+2, n)
	}

	comps := make([]*component, n)
	for i := range comps {
		b := seg[6+3*i:]
		c, err := alloc[component](d.mem, poolImage)
		if err != nil {
			return err
		}
		c.index, c.id = i, int(b[0])
		c.h, c.v = int(b[1]>>4), int(b[1]&0x0F)
		c.tq = int(b[2])
		comps[i] = c
		d.trace("component", slog.Int("id", comps[i].id),
			slog.Int("h", comps[i].h), slog.Int("v", comps[i].v), slog.Int("tq", comps[i].tq))
	}
	d.comps = comps
	d.hdr.Width, d.hdr.Height = width, height
	d.hdr.Components = n
	d.hdr.Precision = precision
	d.hdr.Progressive = progressive
	d.hdr.Arithmetic = arith
	d.mr.sawSOF = true
	return nil
}

func (d *Decompressor) readSOS() error {
	if !d.mr.sawSOF {
		return fmt.Errorf("%w: SOS before SOF", ErrCorrupt)
	}
	seg, err := d.segment()
	if err != nil {
		return err
	}
	if len(seg) < 1 {
		return fmt.Errorf("%w: bad SOS length", ErrCorrupt)
	}
	n := int(seg[0])
	if n < 1 || n > maxCompsInScan || len(seg) != 1+2*n+3 {
		return fmt.Errorf("%w: bad SOS length %d for %d components", ErrCorrupt, len(seg)+2, n)
	}

	comps := make([]*component, n)
	for i := range comps {
		id, tbl := int(seg[1+2*i]), seg[2+2*i]
		var c *component
		for _, cc := range d.comps {
			if cc.id == id {
				c = cc
				break
			}
		}
		if c == nil {
			return fmt.Errorf("%w: invalid component ID %d in SOS", ErrCorrupt, id)
		}
		for _, prev := range comps[:i] {
			if prev == c {
				return fmt.Errorf("%w: component ID %d repeated in SOS", ErrCorrupt, id)
			}
		}
		c.dcTbl, c.acTbl = int(tbl>>4), int(tbl&0x0F)
		comps[i] = c
	}
	p := 1 + 2*n
	d.scan = scanInfo{
		comps: comps,
		ss:    int(seg[p]),
		se:    int(seg[p+1]),
		ah:    int(seg[p+2] >> 4),
		al:    int(seg[p+2] & 0x0F),
	}
	d.trace("start of scan", slog.Int("components", n),
		slog.Int("Ss", d.scan.ss), slog.Int("Se", d.scan.se),
		slog.Int("Ah", d.scan.ah), slog.Int("Al", d.scan.al))

	d.mr.nextRestart = 0
	d.inputScanNumber++
	return nil
}

func (d *Decompressor) readDHT() error {
	seg, err := d.segment()
	if err != nil {
		return err
	}
	p := 0
	for len(seg)-p > 16 {
		idx := int(seg[p])
		p++
		t, err := alloc[huffTable](d.mem, poolPermanent)
		if err != nil {
			return err
		}
		count := 0
		for l := 1; l <= 16; l++ {
			t.bits[l] = seg[p+l-1]
			count += int(t.bits[l])
		}
		p += 16
		if count > 256 || count > len(seg)-p {
			return fmt.Errorf("%w: bad Huffman table", ErrCorrupt)
		}
		copy(t.vals[:], seg[p:p+count])
		p += count

		tables, cache := &d.dcTables, &d.dcDerived
		if idx&0x10 != 0 {
			idx -= 0x10
			tables, cache = &d.acTables, &d.acDerived
		}
		if idx < 0 || idx >= numHuffTables {
			return fmt.Errorf("%w: bad DHT index 0x%02x", ErrCorrupt, idx)
		}
		tables[idx] = t
		cache[idx] = nil
		d.trace("define Huffman table", slog.Int("index", idx), slog.Int("symbols", count))
	}
	if p != len(seg) {
		return fmt.Errorf("%w: bad DHT length", ErrCorrupt)
	}
	return nil
}

func (d *Decompressor) readDQT() error {
	seg, err := d.segment()
	if err != nil {
		return err
	}
	for p := 0; p < len(seg); {
		n := int(seg[p] & 0x0F)
		wide := seg[p]>>4 != 0
		p++
		if n >= numQuantTables {
			return fmt.Errorf("%w: bad DQT index %d", ErrCorrupt, n)
		}
		size := 64
		if wide {
			size = 128
		}
		if len(seg)-p < size {
			return fmt.Errorf("%w: bad DQT length", ErrCorrupt)
		}
		q, err := alloc[[64]uint16](d.mem, poolPermanent)
		if err != nil {
			return err
		}
		for i := 0; i < 64; i++ {
			if wide {
				q[naturalOrder[i]] = uint16(be16(seg[p+2*i:]))
			} else {
				q[naturalOrder[i]] = uint16(seg[p+i])
			}
		}
		p += size
		d.quant[n] = q
		d.trace("define quantization table", slog.Int("index", n), slog.Bool("16bit", wide))
	}
	return nil
}

func (d *Decompressor) readDRI() error {
	seg, err := d.segment()
	if err != nil {
		return err
	}
	if len(seg) != 2 {
		return fmt.Errorf("%w: bad DRI length %d", ErrCorrupt, len(seg)+2)
	}
	d.hdr.RestartInterval = be16(seg)
	d.trace("define restart interval", slog.Int("mcus", d.hdr.RestartInterval))
	return nil
}

// readDAC keeps arithmetic conditioning values; the frame itself is rejected later.
func (d *Decompressor) readDAC() error {
	seg, err := d.segment()
	if err != nil {
		return err
	}
	if len(seg)%2 != 0 {
		return fmt.Errorf("%w: bad DAC length", ErrCorrupt)
	}
	for p := 0; p < len(seg); p += 2 {
		idx, val := int(seg[p]), seg[p+1]
		switch {
		case idx >= 2*numArithTables:
			return fmt.Errorf("%w: bad DAC index %d", ErrCorrupt, idx)
		case idx >= numArithTables:
			d.arithACK[idx-numArithTables] = val
		default:
			d.arithDCL[idx] = val & 0x0F
			d.arithDCU[idx] = val >> 4
			if d.arithDCL[idx] > d.arithDCU[idx] {
				return fmt.Errorf("%w: bad DAC value 0x%02x", ErrCorrupt, val)
			}
		}
	}
	return nil
}

// readVariable handles APPn, COM and DNL. Only the JFIF and Adobe prefixes are read
// unless markers are being saved; the remainder is skipped as it arrives.
func (d *Decompressor) readVariable(m Marker) error {
	if err := d.need(2); err != nil {
		return err
	}
	in := &d.in
	n := be16(in.data[in.pos:])
	if n < 2 {
		return fmt.Errorf("%w: bad %s length %d", ErrCorrupt, m, n)
	}
	payload := n - 2
	prefix := 0
	switch m {
	case MarkerAPP0:
		prefix = app0PrefixLen
	case MarkerAPP14:
		prefix = app14PrefixLen
	}
	save := d.opts.SaveMarkers && m != MarkerDNL
	if save {
		prefix = payload
	}
	prefix = min(prefix, payload)
	if err := d.need(2 + prefix); err != nil {
		return err
	}
	data := in.data[in.pos+2 : in.pos+2+prefix]
	switch m {
	case MarkerAPP0:
		d.examineAPP0(data, payload)
	case MarkerAPP14:
		d.examineAPP14(data)
	}
	if save {
		if err := d.mem.charge(poolImage, int64(len(data))); err != nil {
			return err
		}
		d.hdr.Markers = append(d.hdr.Markers, SavedMarker{Marker: m, Data: bytes.Clone(data)})
	}
	in.pos += 2 + prefix
	d.mr.length = n
	d.mr.skip = payload - prefix
	if d.mr.skip > 0 {
		d.trace("skipping marker segment", slog.String("marker", m.String()), slog.Int("bytes", d.mr.skip))
	}
	return nil
}

func (d *Decompressor) skipSegment() error {
	in := &d.in
	for d.mr.skip > 0 {
		if err := d.need(1); err != nil {
			return err
		}
		k := min(in.avail(), d.mr.skip)
		in.pos += k
		d.mr.skip -= k
		in.commit()
	}
	return nil
}

func (d *Decompressor) examineAPP0(data []byte, payload int) {
	switch {
	case len(data) >= app0PrefixLen && bytes.HasPrefix(data, []byte("JFIF\x00")):
		d.hdr.SawJFIF = true
		d.hdr.JFIFMajor, d.hdr.JFIFMinor = int(data[5]), int(data[6])
		d.hdr.DensityUnit = int(data[7])
		d.hdr.XDensity, d.hdr.YDensity = be16(data[8:]), be16(data[10:])
		if d.hdr.JFIFMajor != 1 {
			d.warn("unknown JFIF revision",
				slog.String("version", fmt.Sprintf("%d.%02d", d.hdr.JFIFMajor, d.hdr.JFIFMinor)))
		}
		d.trace("JFIF APP0", slog.Int("unit", d.hdr.DensityUnit),
			slog.Int("x", d.hdr.XDensity), slog.Int("y", d.hdr.YDensity))
		tw, th := int(data[12]), int(data[13])
		if rest := payload - app0PrefixLen; rest != tw*th*3 {
			d.trace("JFIF thumbnail size mismatch", slog.Int("bytes", rest),
				slog.Int("width", tw), slog.Int("height", th))
		}
	case len(data) >= 6 && bytes.HasPrefix(data, []byte("JFXX\x00")):
		d.trace("JFXX extension", slog.Int("code", int(data[5])), slog.Int("bytes", payload))
	default:
		d.trace("APP0 without JFIF", slog.Int("bytes", payload))
	}
}

func (d *Decompressor) examineAPP14(data []byte) {
	if len(data) < app14PrefixLen || !bytes.HasPrefix(data, []byte("Adobe")) {
		d.trace("unknown APP14 marker")
		return
	}
	d.hdr.SawAdobe = true
	d.hdr.AdobeTransform = int(data[11])
	d.trace("Adobe APP14", slog.Int("version", be16(data[5:])),
		slog.Int("flags0", be16(data[7:])), slog.Int("flags1", be16(data[9:])),
		slog.Int("transform", d.hdr.AdobeTransform))
}

// readRestartMarker consumes the RSTn expected at the end of a restart interval, or
// resynchronizes when something else is there.
func (d *Decompressor) readRestartMarker() error {
	if d.unreadMarker == 0 {
		if err := d.nextMarker(); err != nil {
			return err
		}
	}
	if d.unreadMarker == MarkerRST0+Marker(d.mr.nextRestart) {
		d.trace("restart marker", slog.Int("n", d.mr.nextRestart))
		d.unreadMarker = 0
	} else if err := d.resyncToRestart(d.mr.nextRestart); err != nil {
		return err
	}
	d.mr.nextRestart = (d.mr.nextRestart + 1) & 7
	return nil
}

// resyncToRestart decides what to do with a marker found where RST<desired> belongs.
// A marker just ahead of the expected one is left unread, so the segment in between
// decodes as empty; one just behind is skipped by scanning to the next marker; any
// other restart marker is dropped and decoding resumes.
func (d *Decompressor) resyncToRestart(desired int) error {
	m := d.unreadMarker
	d.warn("corrupt JPEG data: found wrong marker in place of restart marker",
		slog.String("marker", m.String()), slog.Int("expected", desired))
	rst := func(n int) Marker { return MarkerRST0 + Marker(n&7) }
	for {
		var action int
		switch {
		case m < MarkerSOF0:
			action = 2
		case !m.IsRST():
			action = 3
		case m == rst(desired+1), m == rst(desired+2):
			action = 3
		case m == rst(desired-1), m == rst(desired-2):
			action = 2
		default:
			action = 1
		}
		d.trace("resync", slog.String("marker", m.String()), slog.Int("action", action))
		switch action {
		case 1:
			d.unreadMarker = 0
			return nil
		case 2:
			if err := d.nextMarker(); err != nil {
				return err
			}
			m = d.unreadMarker
		default:
			return nil
		}
	}
}
