package feed

import (
	"bytes"

	"golang.org/x/net/html"
)

// feedMIME is the link type advertising a source's feed inside its page.
const feedMIME = "application/rss+xml"

// discoverFeedLink scans an HTML page for a <link type="application/rss+xml">
// element and returns its href, or empty when the page advertises none.
// Tokenizing stops at the first hit; the pages are large and the link sits
// in <head>.
func discoverFeedLink(page []byte) string {
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "link" || !hasAttr {
				continue
			}
			var typ, href string
			for {
				k, v, more := z.TagAttr()
				switch string(k) {
				case "type":
					typ = string(v)
				case "href":
					href = string(v)
				}
				if !more {
					break
				}
			}
			if typ == feedMIME && href != "" {
				return href
			}
		}
	}
}
