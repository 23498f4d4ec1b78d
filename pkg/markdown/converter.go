package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

// ToTerminalText converts assistant markdown into plain text suitable for
// a terminal: emphasis markers are dropped, lists become bullets, code
// blocks are indented.
func ToTerminalText(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	return flattenHTML(html)
}

var (
	paragraphRe = regexp.MustCompile(`<p>((?s).*?)</p>`)
	preRe       = regexp.MustCompile(`<pre><code(?: class="[^"]*")?>((?s).*?)</code></pre>`)
	codeRe      = regexp.MustCompile(`<code>((?s).*?)</code>`)
	headingRe   = regexp.MustCompile(`<h[1-6]>((?s).*?)</h[1-6]>`)
	tagRe       = regexp.MustCompile(`</?[a-zA-Z]+(?:\s[^>]*)?>`)
	blankRe     = regexp.MustCompile(`\n{3,}`)
)

func flattenHTML(html string) string {
	// Paragraphs and headings become plain lines
	html = paragraphRe.ReplaceAllString(html, "$1\n")
	html = headingRe.ReplaceAllString(html, "$1\n")

	// Code blocks keep their content, indented
	html = preRe.ReplaceAllStringFunc(html, func(match string) string {
		inner := preRe.FindStringSubmatch(match)[1]
		lines := strings.Split(strings.TrimRight(inner, "\n"), "\n")
		for i, line := range lines {
			lines[i] = "    " + line
		}
		return strings.Join(lines, "\n") + "\n"
	})
	html = codeRe.ReplaceAllString(html, "`$1`")

	// Lists become bullets
	html = strings.ReplaceAll(html, "<li>", "• ")
	html = strings.ReplaceAll(html, "</li>", "\n")

	// Drop every remaining tag, keeping content
	html = tagRe.ReplaceAllString(html, "")

	// Unescape the entities blackfriday emits
	html = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
	).Replace(html)

	html = blankRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
