// Package encoding implements C3, the EncodingDetector: given a leading
// block of a file, it guesses the text codec and reports the byte width
// and line-terminator layout that codec implies, per spec.md §4.3.
package encoding

import (
	"bytes"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Codec identifies a detected or forced text encoding.
type Codec int

const (
	// UTF8 is the default/heuristic fallback for ASCII-clean data.
	UTF8 Codec = iota
	UTF16LE
	UTF16BE
	UTF32LE
	UTF32BE
	// ISO88591 is the "locale default" fallback: a single-byte codec that
	// can decode any byte sequence without error.
	ISO88591
	// Windows1251 is an additional selectable display codec (spec.md §6).
	Windows1251
)

func (c Codec) String() string {
	switch c {
	case UTF8:
		return "UTF-8"
	case UTF16LE:
		return "UTF-16LE"
	case UTF16BE:
		return "UTF-16BE"
	case UTF32LE:
		return "UTF-32LE"
	case UTF32BE:
		return "UTF-32BE"
	case ISO88591:
		return "ISO-8859-1"
	case Windows1251:
		return "windows-1251"
	default:
		return "UTF-8"
	}
}

// ParseCodecName maps one of the names listed in spec.md §6 to a Codec.
// Unknown names, and the "locale default" sentinel, map to ISO88591 (see
// SPEC_FULL.md: no platform locale API is available in Go, so the locale
// default is implemented as the ISO-8859-1 fallback).
func ParseCodecName(name string) Codec {
	switch name {
	case "UTF-8":
		return UTF8
	case "UTF-16LE":
		return UTF16LE
	case "UTF-16BE":
		return UTF16BE
	case "UTF-32LE":
		return UTF32LE
	case "UTF-32BE":
		return UTF32BE
	case "windows-1251":
		return Windows1251
	default:
		return ISO88591
	}
}

// LineFeedWidth returns the byte width of the line terminator implied by
// the codec: 1 for UTF-8/ISO-8859-1/windows-1251, 2 for UTF-16, 4 for
// UTF-32.
func (c Codec) LineFeedWidth() int {
	switch c {
	case UTF16LE, UTF16BE:
		return 2
	case UTF32LE, UTF32BE:
		return 4
	default:
		return 1
	}
}

// ByteWidth returns the minimum character byte width implied by the codec.
func (c Codec) ByteWidth() int {
	return c.LineFeedWidth()
}

// Detection is the result of sniffing a leading block.
type Detection struct {
	Codec          Codec
	BOMSize        int
	LineFeedWidth  int
	TrailingOffset int // byte offset within the LF sequence where '\n' itself sits
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
)

// Detect inspects up to the first 64KiB of a file (callers should already
// have truncated block to that size) and returns a best-guess codec. BOM
// sniffing always takes precedence over heuristics, matching the
// original_source encodingselector.cpp behavior documented in
// SPEC_FULL.md. Detect is pure and deterministic: same bytes in, same
// Detection out.
func Detect(block []byte) Detection {
	if len(block) > 64*1024 {
		block = block[:64*1024]
	}

	// UTF-32 BOMs must be checked before UTF-16 BOMs since UTF-32LE's BOM
	// is a superset prefix of UTF-16LE's.
	switch {
	case bytes.HasPrefix(block, bomUTF32LE):
		return Detection{Codec: UTF32LE, BOMSize: 4, LineFeedWidth: 4, TrailingOffset: 0}
	case bytes.HasPrefix(block, bomUTF32BE):
		return Detection{Codec: UTF32BE, BOMSize: 4, LineFeedWidth: 4, TrailingOffset: 3}
	case bytes.HasPrefix(block, bomUTF16LE):
		return Detection{Codec: UTF16LE, BOMSize: 2, LineFeedWidth: 2, TrailingOffset: 0}
	case bytes.HasPrefix(block, bomUTF16BE):
		return Detection{Codec: UTF16BE, BOMSize: 2, LineFeedWidth: 2, TrailingOffset: 1}
	case bytes.HasPrefix(block, bomUTF8):
		return Detection{Codec: UTF8, BOMSize: 3, LineFeedWidth: 1, TrailingOffset: 0}
	}

	if len(block) == 0 {
		return Detection{Codec: UTF8, LineFeedWidth: 1}
	}

	// Heuristic: count NUL bytes at even vs odd positions. A dense run of
	// NULs at odd positions is characteristic of ASCII-range text encoded
	// as UTF-16LE without a BOM; at even positions, UTF-16BE.
	evenNul, oddNul := 0, 0
	n := len(block)
	if n > 4096 {
		n = 4096
	}
	for i := 0; i < n; i++ {
		if block[i] == 0 {
			if i%2 == 0 {
				evenNul++
			} else {
				oddNul++
			}
		}
	}
	threshold := n / 4
	if threshold > 0 {
		if oddNul > threshold && oddNul > evenNul*4 {
			return Detection{Codec: UTF16LE, LineFeedWidth: 2, TrailingOffset: 0}
		}
		if evenNul > threshold && evenNul > oddNul*4 {
			return Detection{Codec: UTF16BE, LineFeedWidth: 2, TrailingOffset: 1}
		}
	}

	// No BOM, no wide-character signature: assume UTF-8 (a strict superset
	// of ASCII), which covers the overwhelming majority of log files.
	return Detection{Codec: UTF8, LineFeedWidth: 1}
}

// Decoder returns a golang.org/x/text encoding.Encoding for codecs it
// covers (UTF-8, UTF-16, ISO-8859-1, windows-1251). UTF-32 has no x/text
// encoding (the package does not ship one); callers decode UTF-32 with
// DecodeUTF32 instead.
func (c Codec) Decoder() encoding.Encoding {
	switch c {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case Windows1251:
		return charmap.Windows1251
	case ISO88591:
		return charmap.ISO8859_1
	default:
		return unicode.UTF8
	}
}

// DecodeUTF32 decodes raw UTF-32 bytes (LE or BE) to a string. Truncated
// trailing bytes are dropped and code units that are not valid code points
// decode as U+FFFD, matching the "best effort" decode
// contract LogData.getLineString relies on (spec.md §4.5).
func DecodeUTF32(b []byte, bigEndian bool) string {
	var sb []rune
	for i := 0; i+4 <= len(b); i += 4 {
		var r uint32
		if bigEndian {
			r = uint32(b[i])<<24 | uint32(b[i+1])<<16 | uint32(b[i+2])<<8 | uint32(b[i+3])
		} else {
			r = uint32(b[i+3])<<24 | uint32(b[i+2])<<16 | uint32(b[i+1])<<8 | uint32(b[i])
		}
		sb = append(sb, rune(r))
	}
	return string(sb)
}

// Decode decodes b (raw file bytes for one line; a leading byte-order mark
// is not removed) using codec c, returning a best-effort string. Malformed
// sequences are replaced rather than erroring, since a log viewer must
// never fail to display a line.
func Decode(b []byte, c Codec) string {
	switch c {
	case UTF32LE:
		return DecodeUTF32(b, false)
	case UTF32BE:
		return DecodeUTF32(b, true)
	default:
		out, err := c.Decoder().NewDecoder().Bytes(b)
		if err != nil || out == nil {
			return string(b)
		}
		return string(out)
	}
}
