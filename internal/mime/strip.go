package mime

import (
	"strings"

	"golang.org/x/net/html"
)

// StripTags returns the text content of an HTML fragment. Script and style
// contents are dropped.
func StripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))

	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed document; either way return what was read.
			return strings.TrimSpace(sb.String())
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawText(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawText(name) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawText(tag []byte) bool {
	t := string(tag)
	return t == "script" || t == "style"
}
