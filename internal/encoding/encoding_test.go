package encoding

import "testing"

func TestDetectUTF8BOM(t *testing.T) {
	block := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello\n")...)
	d := Detect(block)
	if d.Codec != UTF8 || d.BOMSize != 3 {
		t.Errorf("expected UTF-8 BOM detection, got %+v", d)
	}
}

func TestDetectUTF16LEBOM(t *testing.T) {
	block := append([]byte{0xFF, 0xFE}, []byte("h\x00i\x00")...)
	d := Detect(block)
	if d.Codec != UTF16LE || d.LineFeedWidth != 2 {
		t.Errorf("expected UTF-16LE, got %+v", d)
	}
}

func TestDetectUTF32LEBOM(t *testing.T) {
	block := append([]byte{0xFF, 0xFE, 0x00, 0x00}, []byte("hi")...)
	d := Detect(block)
	if d.Codec != UTF32LE || d.LineFeedWidth != 4 {
		t.Errorf("expected UTF-32LE, got %+v", d)
	}
}

func TestDetectPlainASCIIDefaultsUTF8(t *testing.T) {
	d := Detect([]byte("plain ascii log line\n"))
	if d.Codec != UTF8 {
		t.Errorf("expected UTF-8 default, got %+v", d)
	}
}

func TestDetectEmptyBlock(t *testing.T) {
	d := Detect(nil)
	if d.Codec != UTF8 {
		t.Errorf("expected UTF-8 for empty block, got %+v", d)
	}
}

func TestDetectUTF16LEHeuristicNoBOM(t *testing.T) {
	// ASCII text encoded as UTF-16LE without BOM: 't'\0'h'\0...
	var block []byte
	for _, ch := range "this is ascii text repeated to pass the threshold" {
		block = append(block, byte(ch), 0)
	}
	d := Detect(block)
	if d.Codec != UTF16LE {
		t.Errorf("expected heuristic UTF-16LE detection, got %+v", d)
	}
}

func TestDecodeUTF32RoundTrip(t *testing.T) {
	// 'h' 'i' as UTF-32LE
	b := []byte{'h', 0, 0, 0, 'i', 0, 0, 0}
	s := DecodeUTF32(b, false)
	if s != "hi" {
		t.Errorf("expected 'hi', got %q", s)
	}
}

func TestDecodeISO88591(t *testing.T) {
	s := Decode([]byte{0xE9}, ISO88591) // é in Latin-1
	if len(s) == 0 {
		t.Error("expected non-empty decoded string")
	}
}

func TestParseCodecName(t *testing.T) {
	cases := map[string]Codec{
		"UTF-8":        UTF8,
		"UTF-16LE":     UTF16LE,
		"UTF-16BE":     UTF16BE,
		"UTF-32LE":     UTF32LE,
		"UTF-32BE":     UTF32BE,
		"windows-1251": Windows1251,
		"ISO-8859-1":   ISO88591,
		"bogus":        ISO88591,
	}
	for name, want := range cases {
		if got := ParseCodecName(name); got != want {
			t.Errorf("ParseCodecName(%q) = %v, want %v", name, got, want)
		}
	}
}
