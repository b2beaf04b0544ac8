package mailparse

import (
	"bytes"
	"mime/quotedprintable"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDecodeQuotedPrintableRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		charset string
		raw     []byte
	}{
		{
			name:    "ascii",
			text:    "Hello World",
			charset: "us-ascii",
			raw:     []byte("Hello World"),
		},
		{
			name:    "utf-8 multibyte",
			text:    "Grüße aus München",
			charset: "utf-8",
			raw:     []byte("Grüße aus München"),
		},
		{
			name:    "latin-1 bytes",
			text:    "café",
			charset: "iso-8859-1",
			raw:     []byte{'c', 'a', 'f', 0xE9},
		},
		{
			name:    "long line forces soft breaks",
			text:    strings.Repeat("a", 90),
			charset: "utf-8",
			raw:     bytes.Repeat([]byte{'a'}, 90),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := quotedprintable.NewWriter(&buf)
			if _, err := w.Write(tt.raw); err != nil {
				t.Fatalf("encode: %v", err)
			}
			w.Close()

			got := DecodeQuotedPrintable(buf.String(), tt.charset)
			if got != tt.text {
				t.Errorf("DecodeQuotedPrintable() = %q; want %q", got, tt.text)
			}
		})
	}
}

func TestDecodeQuotedPrintableSoftBreaks(t *testing.T) {
	got := DecodeQuotedPrintable("Hallo=\r\n Welt=\n!", "utf-8")
	if got != "Hallo Welt!" {
		t.Errorf("soft break removal = %q; want %q", got, "Hallo Welt!")
	}
}

func TestDecodeCharsetFallback(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		charset string
	}{
		{"invalid utf-8 declared utf-8", []byte{0xFF, 0xFE, 'a', 'b'}, "utf-8"},
		{"unknown charset", []byte("plain text"), "x-no-such-charset"},
		{"truncated multibyte", []byte{0xE3, 0x81}, "utf-8"},
		{"invalid iso-2022-jp", []byte{0x1B, '$', 'Z', 0x01}, "iso-2022-jp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeCharset(tt.raw, tt.charset)
			if got == "" && len(tt.raw) > 0 {
				t.Error("DecodeCharset() returned empty string for non-empty input")
			}
			if !utf8.ValidString(got) {
				t.Errorf("DecodeCharset() = %q is not valid UTF-8", got)
			}
		})
	}
}

func TestDecodeCharsetISO88591(t *testing.T) {
	got := DecodeCharset([]byte{'c', 'a', 'f', 0xE9}, "ISO-8859-1")
	if got != "café" {
		t.Errorf("DecodeCharset() = %q; want %q", got, "café")
	}
}

func TestDecodeBase64(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		charset string
		want    string
	}{
		{"simple", "SGFsbG8gV2VsdA==", "utf-8", "Hallo Welt"},
		{"with line breaks", "SGFsbG8g\r\nV2VsdA==", "utf-8", "Hallo Welt"},
		{"latin-1 payload", "Y2Fm6Q==", "iso-8859-1", "café"},
		{"garbage returns input", "!!not base64!!", "utf-8", "!!not base64!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeBase64(tt.input, tt.charset); got != tt.want {
				t.Errorf("DecodeBase64(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCharsetFromParams(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{"lowercase", map[string]string{"charset": "utf-8"}, "utf-8"},
		{"uppercase", map[string]string{"CHARSET": "ISO-8859-1"}, "ISO-8859-1"},
		{"mixed", map[string]string{"Charset": `"windows-1252"`}, "windows-1252"},
		{"absent", map[string]string{"name": "x.bin"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CharsetFromParams(tt.params); got != tt.want {
				t.Errorf("CharsetFromParams() = %q; want %q", got, tt.want)
			}
		})
	}
}
