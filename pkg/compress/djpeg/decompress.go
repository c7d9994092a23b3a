package djpeg

import (
	"errors"
	"fmt"
	"log/slog"
)

// Progress reports what a call to the input side accomplished.
type Progress int

const (
	ProgressReachedSOS    Progress = iota + 1 // a scan header was read
	ProgressReachedEOI                        // the end of the image was read
	ProgressRowCompleted                      // one iMCU row of a scan was decoded
	ProgressScanCompleted                     // the last iMCU row of a scan was decoded
)

func (p Progress) String() string {
	switch p {
	case ProgressReachedSOS:
		return "reached SOS"
	case ProgressReachedEOI:
		return "reached EOI"
	case ProgressRowCompleted:
		return "row completed"
	case ProgressScanCompleted:
		return "scan completed"
	default:
		return fmt.Sprintf("Progress(%d)", int(p))
	}
}

// HeaderStatus is the outcome of ReadHeader.
type HeaderStatus int

const (
	HeaderOK         HeaderStatus = iota + 1 // image header read, ready to decompress
	HeaderTablesOnly                         // abbreviated stream holding only tables
)

type globalState int

const (
	stateStart     globalState = iota // after creation or Abort
	stateInHeader                     // reading markers up to the first SOS
	stateReady                        // header read, StartDecompress not yet called
	statePreload                      // absorbing a multi-scan image before output
	statePrescan                      // output pass being set up
	stateScanning                     // ReadScanlines allowed
	stateRaw                          // ReadRawData allowed
	stateBufImage                     // buffered image, between output passes
	stateBufPost                      // buffered image, finishing an output pass
	stateStopping                     // reading to EOI after the last scanline
)

var stateNames = [...]string{
	stateStart:     "start",
	stateInHeader:  "in header",
	stateReady:     "ready",
	statePreload:   "preload",
	statePrescan:   "prescan",
	stateScanning:  "scanning",
	stateRaw:       "raw",
	stateBufImage:  "buffered image",
	stateBufPost:   "buffered image post",
	stateStopping:  "stopping",
}

func (s globalState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Decompressor decodes one JPEG stream at a time. Compressed bytes are supplied with
// Write (push) or SetSource (pull); every decoding call returns ErrSuspended when it
// needs bytes that have not arrived and may then simply be repeated.
//
// Tables defined by DQT and DHT persist across Abort and FinishDecompress, so a
// tables-only stream may be followed by abbreviated image streams.
type Decompressor struct {
	opts     Options
	log      *slog.Logger
	state    globalState
	err      error
	warnings int

	in  inputBuffer
	mem *arena

	mr           markerState
	unreadMarker Marker
	segments     []Segment

	quant                        [numQuantTables]*[64]uint16
	dcTables, acTables           [numHuffTables]*huffTable
	dcDerived, acDerived         [numHuffTables]*derivedTable
	arithDCL, arithDCU, arithACK [numArithTables]uint8

	hdr           Header
	comps         []*component
	scan          scanInfo
	maxH, maxV    int
	minDCT        int
	totalIMCURows int

	inHeaders        bool
	inputData        bool
	eoiReached       bool
	hasMultipleScans bool
	inputScanNumber  int
	inputIMCURow     int
	outputScanNumber int
	outputIMCURow    int
	// coefBits[c][k] is the Al of the last scan that coded coefficient k of component
	// c, -1 before any; nil for sequential images.
	coefBits [][64]int

	br        bitReader
	entropy   entropyDecoder
	coef      *coefController
	upsampler *upsampler
	cconvert  *colorConverter
	quantizer *quantizer
	out       *outputController

	outputWidth, outputHeight int
	outColorSpace             ColorSpace
	outColorComponents        int
	outComponents             int
	outputScanline            int
}

// NewDecompressor returns a decoder configured by opts; nil selects DefaultOptions.
func NewDecompressor(opts *Options) *Decompressor {
	o := *DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ScaleDenom <= 0 {
		o.ScaleDenom = 1
	}
	if o.Colors == 0 {
		o.Colors = 256
	}
	d := &Decompressor{opts: o, log: o.Logger}
	d.br.d = d
	d.mem = newArena(&d.opts)
	return d
}

func (d *Decompressor) warn(msg string, args ...any) {
	d.warnings++
	d.log.Warn(msg, args...)
}

func (d *Decompressor) trace(msg string, args ...any) {
	d.log.Debug(msg, args...)
}

// check keeps a fatal error so later calls report it too.
func (d *Decompressor) check(err error) error {
	if err != nil && !errors.Is(err, ErrSuspended) && d.err == nil {
		d.err = err
	}
	return err
}

func (d *Decompressor) badState(call string) error {
	return fmt.Errorf("%w: %s called in state %s", ErrInternal, call, d.state)
}

// Warnings returns the number of recoverable problems seen so far.
func (d *Decompressor) Warnings() int { return d.warnings }

// Segments returns the markers read so far, in stream order.
func (d *Decompressor) Segments() []Segment { return d.segments }

// Header returns the image header. It is complete once ReadHeader returned HeaderOK.
func (d *Decompressor) Header() Header { return d.hdr }

func (d *Decompressor) OutputWidth() int         { return d.outputWidth }
func (d *Decompressor) OutputHeight() int        { return d.outputHeight }
func (d *Decompressor) OutColorSpace() ColorSpace { return d.outColorSpace }

// OutputComponents is the number of bytes per output pixel: 1 when quantizing.
func (d *Decompressor) OutputComponents() int { return d.outComponents }

// OutputScanline is the number of scanlines delivered in the current output pass.
func (d *Decompressor) OutputScanline() int { return d.outputScanline }

// RawLines is the number of scanlines each ReadRawData call covers.
func (d *Decompressor) RawLines() int { return d.maxV * d.minDCT }

// RawPlane returns the sample width and height of component i, and the rows and
// row width of the buffers ReadRawData fills for it.
func (d *Decompressor) RawPlane(i int) (width, height, bandRows, bandWidth int) {
	c := d.comps[i]
	return c.downWidth, c.downHeight, c.v * c.dctScaled, c.widthInBlocks * c.dctScaled
}

// Colormap returns the colormap of quantized output, nil otherwise.
func (d *Decompressor) Colormap() [][]byte {
	if d.quantizer == nil {
		return nil
	}
	return d.quantizer.colormap
}

// consume is ConsumeInput without the state check.
func (d *Decompressor) consume() (Progress, error) {
	switch d.state {
	case stateStart:
		d.resetInput()
		d.state = stateInHeader
		fallthrough
	case stateInHeader:
		p, err := d.consumeInput()
		if err != nil {
			return 0, d.check(err)
		}
		if p == ProgressReachedSOS {
			d.guessColorSpace()
			d.state = stateReady
		}
		return p, nil
	case stateReady:
		return ProgressReachedSOS, nil
	default:
		p, err := d.consumeInput()
		return p, d.check(err)
	}
}

// ConsumeInput absorbs input without producing output: markers before the first scan,
// and coefficient data of multi-scan images.
func (d *Decompressor) ConsumeInput() (Progress, error) {
	if d.err != nil {
		return 0, d.err
	}
	return d.consume()
}

// ReadHeader reads markers up to the first SOS. With requireImage, a stream holding
// only tables is an error; otherwise it yields HeaderTablesOnly and the tables it
// defined remain for the next image.
func (d *Decompressor) ReadHeader(requireImage bool) (HeaderStatus, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.state != stateStart && d.state != stateInHeader {
		return 0, d.badState("ReadHeader")
	}
	p, err := d.consume()
	if err != nil {
		return 0, err
	}
	switch p {
	case ProgressReachedSOS:
		d.trace("header complete",
			slog.Int("width", d.hdr.Width), slog.Int("height", d.hdr.Height),
			slog.String("colorSpace", d.hdr.ColorSpace.String()))
		return HeaderOK, nil
	case ProgressReachedEOI:
		if requireImage {
			return 0, d.check(ErrNoImage)
		}
		d.Abort()
		return HeaderTablesOnly, nil
	}
	return 0, d.check(fmt.Errorf("%w: unexpected progress %s reading header", ErrInternal, p))
}

// StartDecompress configures decoding and, for multi-scan images outside
// buffered-image mode, absorbs the whole stream.
func (d *Decompressor) StartDecompress() error {
	if d.err != nil {
		return d.err
	}
	if d.state == stateReady {
		if err := d.masterSelection(); err != nil {
			return d.check(err)
		}
		if d.opts.BufferedImage {
			d.state = stateBufImage
			return nil
		}
		d.state = statePreload
	}
	switch d.state {
	case statePreload:
		if d.hasMultipleScans {
			for {
				p, err := d.consumeInput()
				if err != nil {
					return d.check(err)
				}
				if p == ProgressReachedEOI {
					break
				}
			}
		}
		d.outputScanNumber = d.inputScanNumber
	case statePrescan:
	default:
		return d.badState("StartDecompress")
	}
	return d.outputPassSetup()
}

func (d *Decompressor) outputPassSetup() error {
	if d.state != statePrescan {
		d.prepareOutputPass()
		d.outputScanline = 0
		d.state = statePrescan
	}
	if d.opts.RawData {
		d.state = stateRaw
	} else {
		d.state = stateScanning
	}
	return nil
}

// ReadScanlines fills rows with the next output scanlines and returns how many were
// written. Each row needs OutputWidth()*OutputComponents() bytes. On ErrSuspended the
// count may still be nonzero.
func (d *Decompressor) ReadScanlines(rows [][]byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.state != stateScanning {
		return 0, d.badState("ReadScanlines")
	}
	if d.outputScanline >= d.outputHeight {
		d.warn("application transferred too many scanlines")
		return 0, nil
	}
	n, err := d.out.readScanlines(rows)
	return n, d.check(err)
}

// ReadRawData decodes one iMCU row of downsampled samples into planes[c], which needs
// RawPlane's bandRows rows of bandWidth bytes per component. It returns RawLines().
func (d *Decompressor) ReadRawData(planes [][][]byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.state != stateRaw {
		return 0, d.badState("ReadRawData")
	}
	if d.outputScanline >= d.outputHeight {
		d.warn("application transferred too many scanlines")
		return 0, nil
	}
	if len(planes) < len(d.comps) {
		return 0, fmt.Errorf("%w: %d raw planes for %d components", ErrInternal, len(planes), len(d.comps))
	}
	for i, c := range d.comps {
		if len(planes[i]) < c.v*c.dctScaled {
			return 0, fmt.Errorf("%w: raw plane %d has %d rows, need %d", ErrInternal, i, len(planes[i]), c.v*c.dctScaled)
		}
	}
	if _, err := d.coef.decompress(planes); err != nil {
		return 0, d.check(err)
	}
	lines := d.RawLines()
	d.outputScanline += lines
	return lines, nil
}

// FinishDecompress reads the rest of the stream up to EOI and releases the image.
func (d *Decompressor) FinishDecompress() error {
	if d.err != nil {
		return d.err
	}
	switch {
	case (d.state == stateScanning || d.state == stateRaw) && !d.opts.BufferedImage:
		if d.outputScanline < d.outputHeight {
			return fmt.Errorf("%w: FinishDecompress after %d of %d scanlines",
				ErrInternal, d.outputScanline, d.outputHeight)
		}
		d.state = stateStopping
	case d.state == stateBufImage:
		d.state = stateStopping
	case d.state != stateStopping:
		return d.badState("FinishDecompress")
	}
	for !d.eoiReached {
		if _, err := d.consumeInput(); err != nil {
			return d.check(err)
		}
	}
	d.trace("decompression finished", slog.Int("warnings", d.warnings))
	d.Abort()
	return nil
}

// Abort releases the current image and returns the decoder to its initial state.
// Tables and unread input are kept.
func (d *Decompressor) Abort() {
	if err := d.mem.freePool(poolImage); err != nil {
		d.log.Warn("releasing backing store", slog.Any("error", err))
	}
	d.dcDerived = [numHuffTables]*derivedTable{}
	d.acDerived = [numHuffTables]*derivedTable{}
	d.coef = nil
	d.entropy = nil
	d.upsampler = nil
	d.cconvert = nil
	d.quantizer = nil
	d.out = nil
	d.hdr.Markers = nil
	d.err = nil
	d.state = stateStart
}

// InputComplete reports whether EOI has been read.
func (d *Decompressor) InputComplete() bool {
	return d.state != stateStart && d.eoiReached
}

// HasMultipleScans reports whether the image needs more than one scan. Valid after
// ReadHeader.
func (d *Decompressor) HasMultipleScans() bool {
	return d.state >= stateReady && d.hasMultipleScans
}

// StartOutput begins a buffered-image output pass showing the image as of scan.
// Scans beyond the last one are clamped once EOI has been seen.
func (d *Decompressor) StartOutput(scan int) error {
	if d.err != nil {
		return d.err
	}
	if d.state != stateBufImage && d.state != statePrescan {
		return d.badState("StartOutput")
	}
	scan = max(scan, 1)
	if d.eoiReached && scan > d.inputScanNumber {
		scan = d.inputScanNumber
	}
	d.outputScanNumber = scan
	return d.outputPassSetup()
}

// FinishOutput ends a buffered-image output pass. It waits until input has moved past
// the scan just shown, or reached EOI.
func (d *Decompressor) FinishOutput() error {
	if d.err != nil {
		return d.err
	}
	switch {
	case (d.state == stateScanning || d.state == stateRaw) && d.opts.BufferedImage:
		d.state = stateBufPost
	case d.state != stateBufPost:
		return d.badState("FinishOutput")
	}
	for d.inputScanNumber <= d.outputScanNumber && !d.eoiReached {
		if _, err := d.consumeInput(); err != nil {
			return d.check(err)
		}
	}
	d.state = stateBufImage
	return nil
}

// OutputScanNumber is the scan shown by the current buffered-image pass.
func (d *Decompressor) OutputScanNumber() int { return d.outputScanNumber }

// InputScanNumber is the number of scans started so far.
func (d *Decompressor) InputScanNumber() int { return d.inputScanNumber }
