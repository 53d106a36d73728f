// Package normalize turns raw forum content into plain posts.
//
// Normalization is fail-soft: malformed input produces sentinel values instead
// of an error so a single corrupt post cannot abort a scan.
package normalize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"llama-bot/types"
)

// RawPost is a post as decoded from the forum. Nil fields were missing from
// the payload.
type RawPost struct {
	Content  string
	Username *string
	Group    *string
}

// Post normalizes a raw post. It never fails.
func Post(raw RawPost) types.Post {
	author := types.UnknownAuthor
	if raw.Username != nil {
		author = *raw.Username
	}
	group := types.UnknownGroup
	if raw.Group != nil {
		group = *raw.Group
	}
	return types.Post{
		Author: author,
		Group:  group,
		Text:   Text(raw.Content),
	}
}

// Text extracts the text of every paragraph in markup, in document order,
// joined by single spaces. Content outside <p> elements is dropped.
func Text(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	var paragraphs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.P {
			paragraphs = append(paragraphs, nodeText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(paragraphs, " ")
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// Title decodes HTML entities in a thread title.
func Title(s string) string {
	return html.UnescapeString(s)
}
