package htmlutil

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

// GetText concatenates every text node under `node`.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer, false)
	return buffer.String()
}

// GetRenderedText is GetText but it skips the contents of script and style
// elements, which a browser would never show.
func GetRenderedText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer, true)
	return buffer.String()
}

func isHidden(node *html.Node) bool {
	if node.Type != html.ElementNode {
		return false
	}
	switch node.Data {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer, renderedOnly bool) {
	if node == nil {
		return
	}
	if renderedOnly && isHidden(node) {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, buffer, renderedOnly)
	}
}

// OwnText returns only the text nodes that are direct children of `node`.
func OwnText(node *html.Node) string {
	var buffer bytes.Buffer
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			buffer.WriteString(child.Data)
		}
	}
	return buffer.String()
}

// FindTextNode walks the tree in document order and returns the first
// visible text node for which `match` returns true.
func FindTextNode(node *html.Node, match func(text string) bool) *html.Node {
	if node == nil || isHidden(node) {
		return nil
	}
	if node.Type == html.TextNode {
		if match(node.Data) {
			return node
		}
		return nil
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		found := FindTextNode(child, match)
		if found != nil {
			return found
		}
	}
	return nil
}

var innerWhitespace = regexp.MustCompile(`\s+`)

// NormalizeText applies NFKC (which also folds &nbsp; into a plain space),
// collapses whitespace runs and trims the result.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = innerWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// DecodeBody returns a reader that yields `body` as utf-8, using the charset
// declared by `contentType` or sniffed from the document itself.
func DecodeBody(body []byte, contentType string) (io.Reader, error) {
	return charset.NewReader(bytes.NewReader(body), contentType)
}
