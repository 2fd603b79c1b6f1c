package pipeline

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// junkEmailMarkers filter addresses that are never a real inbox: transactional
// senders, documentation placeholders, and asset filenames that happen to
// match the pattern.
var junkEmailMarkers = []string{
	"noreply", "no-reply", "donotreply", "do-not-reply",
	"example.com", "example.org", "example.net",
	"sentry", "wixpress",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp",
}

// ExtractEmail pulls the best contact address out of a page. mailto: anchors
// win over addresses scraped from text, since the site chose to publish them
// as a contact route. Returns "" when nothing usable is found.
func ExtractEmail(pageHTML string) string {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return firstUsableEmail(emailPattern.FindAllString(pageHTML, -1))
	}

	var mailtos, texts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && strings.HasPrefix(strings.ToLower(attr.Val), "mailto:") {
					addr := strings.TrimPrefix(attr.Val, "mailto:")
					if i := strings.IndexByte(addr, '?'); i >= 0 {
						addr = addr[:i]
					}
					mailtos = append(mailtos, addr)
				}
			}
		}
		if n.Type == html.TextNode {
			texts = append(texts, emailPattern.FindAllString(n.Data, -1)...)
		}
		// Script and style bodies carry tracking addresses, not contacts.
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if addr := firstUsableEmail(mailtos); addr != "" {
		return addr
	}
	return firstUsableEmail(texts)
}

func firstUsableEmail(candidates []string) string {
	for _, raw := range candidates {
		addr := strings.TrimSpace(raw)
		if addr == "" || !emailPattern.MatchString(addr) {
			continue
		}
		if isJunkEmail(addr) {
			continue
		}
		return strings.ToLower(addr)
	}
	return ""
}

func isJunkEmail(addr string) bool {
	lower := strings.ToLower(addr)
	for _, marker := range junkEmailMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
