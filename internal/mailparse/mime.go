package mailparse

import (
	"regexp"
	"strings"
)

var (
	boundaryRe = regexp.MustCompile(`(?i)boundary\s*=\s*"?([^";\r\n]+)"?`)
	charsetRe  = regexp.MustCompile(`(?i)charset\s*=\s*"?([^";\r\n]+)"?`)
)

// ParseMessage walks a raw RFC-822 message and returns the best plain
// and HTML bodies it contains. For each kind the first part found in
// document order wins; attachment-disposition parts are skipped.
func ParseMessage(raw string) (text, html string) {
	headers, body := splitHeadersBody(raw)
	contentType := headerValue(headers, "Content-Type")
	boundary := boundaryFrom(contentType)
	if boundary == "" {
		return parseSinglePart(contentType, headerValue(headers, "Content-Transfer-Encoding"), body)
	}
	return parseMultipart(body, boundary)
}

func parseMultipart(body, boundary string) (text, html string) {
	segments := strings.Split(body, "--"+boundary)
	for i, segment := range segments {
		// Content before the first delimiter is MIME preamble, not a part.
		if i == 0 {
			continue
		}
		trimmed := strings.TrimSpace(segment)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}

		partHeaders, partBody := splitHeadersBody(strings.TrimLeft(segment, "\r\n"))
		contentType := headerValue(partHeaders, "Content-Type")
		transferEnc := headerValue(partHeaders, "Content-Transfer-Encoding")
		disposition := headerValue(partHeaders, "Content-Disposition")

		if strings.Contains(strings.ToLower(disposition), "attachment") {
			continue
		}

		if strings.HasPrefix(strings.ToLower(contentType), "multipart/") {
			subBoundary := boundaryFrom(contentType)
			if subBoundary == "" {
				continue
			}
			subText, subHTML := parseMultipart(partBody, subBoundary)
			if text == "" && subText != "" {
				text = subText
			}
			if html == "" && subHTML != "" {
				html = subHTML
			}
			continue
		}

		decoded := decodePartBody(partBody, transferEnc, charsetFrom(contentType))
		switch {
		case isHTMLType(contentType):
			if html == "" {
				html = decoded
			}
		case isPlainType(contentType):
			if text == "" {
				text = decoded
			}
		}
	}
	return text, html
}

func parseSinglePart(contentType, transferEnc, body string) (text, html string) {
	decoded := decodePartBody(body, transferEnc, charsetFrom(contentType))
	if isHTMLType(contentType) {
		return "", decoded
	}
	return decoded, ""
}

// decodePartBody applies the declared transfer encoding, then the
// declared charset. With no transfer encoding and a non-7-bit charset
// the raw text is reinterpreted as bytes before charset decoding.
func decodePartBody(body, transferEnc, charset string) string {
	body = strings.Trim(body, "\r\n")
	switch strings.ToLower(strings.TrimSpace(transferEnc)) {
	case "quoted-printable":
		return DecodeQuotedPrintable(body, charset)
	case "base64":
		return DecodeBase64(body, charset)
	case "", "7bit", "8bit", "binary":
		if !SevenBitCharset(charset) {
			return DecodeCharset([]byte(body), charset)
		}
		return body
	default:
		return body
	}
}

func boundaryFrom(contentType string) string {
	if m := boundaryRe.FindStringSubmatch(contentType); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func charsetFrom(contentType string) string {
	if m := charsetRe.FindStringSubmatch(contentType); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func isHTMLType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

// isPlainType treats a missing Content-Type as text/plain, per the
// RFC-822 default.
func isPlainType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return ct == "" || strings.Contains(ct, "text/plain")
}

// splitHeadersBody splits a message or part at the first blank line.
func splitHeadersBody(raw string) (headers, body string) {
	if idx := strings.Index(raw, "\r\n\r\n"); idx >= 0 {
		lfIdx := strings.Index(raw, "\n\n")
		if lfIdx >= 0 && lfIdx < idx {
			return raw[:lfIdx], raw[lfIdx+2:]
		}
		return raw[:idx], raw[idx+4:]
	}
	if idx := strings.Index(raw, "\n\n"); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}
	return raw, ""
}

// headerValue returns the unfolded value of a header, matched
// case-insensitively.
func headerValue(headers, name string) string {
	lines := strings.Split(headers, "\n")
	prefix := strings.ToLower(name) + ":"
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(strings.ToLower(line), prefix) {
			continue
		}
		value := strings.TrimSpace(line[len(prefix):])
		for j := i + 1; j < len(lines); j++ {
			next := strings.TrimRight(lines[j], "\r")
			if !strings.HasPrefix(next, " ") && !strings.HasPrefix(next, "\t") {
				break
			}
			value += " " + strings.TrimSpace(next)
		}
		return value
	}
	return ""
}
