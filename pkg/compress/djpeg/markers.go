package djpeg

import "fmt"

// Marker is the code byte that follows 0xFF in a JPEG stream.
type Marker byte

// JPEG marker codes (ITU-T T.81 Table B.1)
const (
	// Start of frame, Huffman coding
	MarkerSOF0 Marker = 0xC0 // Baseline DCT
	MarkerSOF1 Marker = 0xC1 // Extended sequential DCT
	MarkerSOF2 Marker = 0xC2 // Progressive DCT
	MarkerSOF3 Marker = 0xC3 // Lossless (sequential)

	MarkerDHT Marker = 0xC4 // Define Huffman table(s)

	// Start of frame, differential Huffman coding
	MarkerSOF5 Marker = 0xC5
	MarkerSOF6 Marker = 0xC6
	MarkerSOF7 Marker = 0xC7

	// Start of frame, arithmetic coding
	MarkerJPG   Marker = 0xC8 // Reserved for JPEG extensions
	MarkerSOF9  Marker = 0xC9 // Extended sequential DCT
	MarkerSOF10 Marker = 0xCA // Progressive DCT
	MarkerSOF11 Marker = 0xCB // Lossless (sequential)

	MarkerDAC Marker = 0xCC // Define arithmetic coding conditioning

	// Start of frame, differential arithmetic coding
	MarkerSOF13 Marker = 0xCD
	MarkerSOF14 Marker = 0xCE
	MarkerSOF15 Marker = 0xCF

	// Restart interval termination
	MarkerRST0 Marker = 0xD0
	MarkerRST7 Marker = 0xD7

	MarkerSOI Marker = 0xD8 // Start of image
	MarkerEOI Marker = 0xD9 // End of image
	MarkerSOS Marker = 0xDA // Start of scan
	MarkerDQT Marker = 0xDB // Define quantization table(s)
	MarkerDNL Marker = 0xDC // Define number of lines
	MarkerDRI Marker = 0xDD // Define restart interval
	MarkerDHP Marker = 0xDE // Define hierarchical progression
	MarkerEXP Marker = 0xDF // Expand reference component(s)

	MarkerAPP0  Marker = 0xE0 // JFIF
	MarkerAPP14 Marker = 0xEE // Adobe
	MarkerAPP15 Marker = 0xEF
	MarkerCOM   Marker = 0xFE // Comment

	MarkerTEM Marker = 0x01 // For temporary private use in arithmetic coding
)

// IsRST reports whether m is one of RST0..RST7.
func (m Marker) IsRST() bool {
	return m >= MarkerRST0 && m <= MarkerRST7
}

// IsAPP reports whether m is one of APP0..APP15.
func (m Marker) IsAPP() bool {
	return m >= MarkerAPP0 && m <= MarkerAPP15
}

func (m Marker) String() string {
	switch {
	case m == MarkerSOF0, m == MarkerSOF1, m == MarkerSOF2, m == MarkerSOF3,
		m >= MarkerSOF5 && m <= MarkerSOF7, m >= MarkerSOF9 && m <= MarkerSOF11,
		m >= MarkerSOF13 && m <= MarkerSOF15:
		return fmt.Sprintf("SOF%d", int(m-MarkerSOF0))
	case m == MarkerJPG:
		return "JPG"
	case m == MarkerDHT:
		return "DHT"
	case m == MarkerDAC:
		return "DAC"
	case m.IsRST():
		return fmt.Sprintf("RST%d", int(m-MarkerRST0))
	case m == MarkerSOI:
		return "SOI"
	case m == MarkerEOI:
		return "EOI"
	case m == MarkerSOS:
		return "SOS"
	case m == MarkerDQT:
		return "DQT"
	case m == MarkerDNL:
		return "DNL"
	case m == MarkerDRI:
		return "DRI"
	case m == MarkerDHP:
		return "DHP"
	case m == MarkerEXP:
		return "EXP"
	case m.IsAPP():
		return fmt.Sprintf("APP%d", int(m-MarkerAPP0))
	case m == MarkerCOM:
		return "COM"
	case m == MarkerTEM:
		return "TEM"
	default:
		return fmt.Sprintf("0x%02X", byte(m))
	}
}
