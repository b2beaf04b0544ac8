package email

import (
	"strings"

	"github.com/jaytaylor/html2text"

	"github.com/brandon/mail-engine/pkg/types"
)

// footerSeparator introduces the legal footer block.
const footerSeparator = "\n\n--\n"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// AssembleBody builds the final outbound text/HTML pair from the user
// content plus the owner's optional signature and footer. In replies
// the extra content is spliced before the quoted history so it stays
// readable under top-posting.
func AssembleBody(profile *types.Profile, userText, userHTML string, includeSignature, includeFooter, isReply bool) types.ComposedBody {
	if userText == "" && userHTML != "" {
		userText = textFromHTML(userHTML)
	}

	var extra strings.Builder
	if includeSignature {
		if sig := strings.TrimSpace(profile.Signature); sig != "" {
			extra.WriteString("\n\n")
			extra.WriteString(sig)
		}
	}
	if includeFooter {
		if footer := footerText(profile); footer != "" {
			extra.WriteString(footerSeparator)
			extra.WriteString(footer)
		}
	}

	text := spliceExtra(userText, extra.String(), isReply)

	html := userHTML
	if html == "" {
		html = `<div style="white-space: pre-wrap; font-family: monospace">` + htmlEscaper.Replace(text) + `</div>`
	} else if extra.Len() > 0 {
		html += `<div style="white-space: pre-wrap; font-family: monospace">` + htmlEscaper.Replace(extra.String()) + `</div>`
	}

	return types.ComposedBody{Text: text, HTML: html}
}

// spliceExtra appends signature/footer content, or, in a reply with
// quoted history, inserts it before the first quote marker.
func spliceExtra(text, extra string, isReply bool) string {
	if extra == "" {
		return text
	}
	if isReply {
		if idx := quoteMarkerIndex(text); idx >= 0 {
			head := strings.TrimRight(text[:idx], "\r\n")
			return head + extra + "\n\n" + text[idx:]
		}
	}
	return text + extra
}

// quoteMarkerIndex returns the byte offset of the first quoted-history
// line: a line starting with ">" or containing an "--- Original"
// marker, whichever comes first. Returns -1 when there is none.
func quoteMarkerIndex(text string) int {
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(trimmed, ">") || strings.Contains(trimmed, "--- Original") {
			return offset
		}
		offset += len(line)
	}
	return -1
}

// footerText renders the footer line items, omitting absent fields.
func footerText(profile *types.Profile) string {
	var lines []string
	for _, item := range []string{
		profile.FooterCompany,
		profile.FooterExtra,
		profile.FooterWebsite,
		profile.FooterBank,
	} {
		if item = strings.TrimSpace(item); item != "" {
			lines = append(lines, item)
		}
	}
	return strings.Join(lines, "\n")
}

// textFromHTML derives a plain alternative when the caller supplied
// only HTML.
func textFromHTML(html string) string {
	text, err := html2text.FromString(html, html2text.Options{TextOnly: true})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
