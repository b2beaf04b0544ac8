package mailparse

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// charsetAliases maps spellings seen in the wild to IANA names that
// golang.org/x/text resolves.
var charsetAliases = map[string]string{
	"utf8":              "utf-8",
	"latin1":            "iso-8859-1",
	"latin-1":           "iso-8859-1",
	"iso8859-1":         "iso-8859-1",
	"iso_8859-1":        "iso-8859-1",
	"cp1252":            "windows-1252",
	"win-1252":          "windows-1252",
	"ansi_x3.4-1968":    "us-ascii",
	"ks_c_5601-1987":    "euc-kr",
	"gb2312":            "gbk",
	"iso-2022-jp-ms":    "iso-2022-jp",
	"unicode-1-1-utf-7": "utf-7",
}

// DecodeCharset converts raw bytes plus a declared charset into text.
// Malformed sequences never raise: any decoding failure falls back to
// best-effort UTF-8 so hostile mail still yields readable content.
func DecodeCharset(raw []byte, charset string) string {
	enc := lookupEncoding(charset)
	if enc != nil {
		decoded, err := enc.NewDecoder().Bytes(raw)
		if err == nil {
			return string(decoded)
		}
	}
	return bestEffortUTF8(raw)
}

// DecodeQuotedPrintable decodes a quoted-printable body. Soft line
// breaks are removed first, then the text is reassembled byte-wise so
// multi-byte sequences split across =XX escapes decode as whole
// sequences in the declared charset.
func DecodeQuotedPrintable(s, charset string) string {
	s = strings.ReplaceAll(s, "=\r\n", "")
	s = strings.ReplaceAll(s, "=\n", "")

	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if s[i] == '=' && i+2 < len(s) {
			hi, okHi := unhex(s[i+1])
			lo, okLo := unhex(s[i+2])
			if okHi && okLo {
				buf = append(buf, hi<<4|lo)
				i += 3
				continue
			}
		}
		buf = append(buf, s[i])
		i++
	}
	return DecodeCharset(buf, charset)
}

// DecodeBase64 decodes a base64 body with the declared charset. Any
// failure returns the input unchanged.
func DecodeBase64(s, charset string) string {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)

	raw, err := base64.StdEncoding.DecodeString(stripped)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(stripped)
		if err != nil {
			return s
		}
	}
	return DecodeCharset(raw, charset)
}

// CharsetFromParams scans a Content-Type parameter map for a charset
// declaration, ignoring key casing.
func CharsetFromParams(params map[string]string) string {
	for k, v := range params {
		if strings.EqualFold(k, "charset") {
			return strings.Trim(v, `"' `)
		}
	}
	return ""
}

// SevenBitCharset reports whether the charset needs no byte-level
// reinterpretation before use.
func SevenBitCharset(charset string) bool {
	switch normalizeCharset(charset) {
	case "", "us-ascii", "ascii", "utf-8":
		return true
	}
	return false
}

func normalizeCharset(charset string) string {
	name := strings.ToLower(strings.Trim(strings.TrimSpace(charset), `"'`))
	if alias, ok := charsetAliases[name]; ok {
		return alias
	}
	return name
}

func lookupEncoding(charset string) encoding.Encoding {
	name := normalizeCharset(charset)
	if name == "" || name == "utf-8" || name == "us-ascii" || name == "ascii" {
		return nil
	}
	enc, err := ianaindex.MIME.Encoding(name)
	if err != nil || enc == nil {
		enc, err = ianaindex.IANA.Encoding(name)
		if err != nil || enc == nil {
			return nil
		}
	}
	return enc
}

func bestEffortUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
