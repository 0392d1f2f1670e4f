package sitemap

import (
	"bytes"
	"encoding/xml"
	"strings"

	"golang.org/x/net/html/charset"
)

const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// node is a generic element tree; sitemap documents in the wild mix
// namespaces too freely for a fixed struct mapping.
type node struct {
	XMLName  xml.Name
	Children []node `xml:",any"`
	Text     string `xml:",chardata"`
}

func parseTree(content []byte) (*node, error) {
	d := xml.NewDecoder(bytes.NewReader(content))
	d.CharsetReader = charset.NewReaderLabel
	var root node
	if err := d.Decode(&root); err != nil {
		return nil, err
	}
	return &root, nil
}

func (n *node) walk(fn func(*node)) {
	for i := range n.Children {
		c := &n.Children[i]
		fn(c)
		c.walk(fn)
	}
}

// findAll returns descendants named local in the sitemap namespace, falling
// back to a namespace-blind match when the document uses none or another one.
func (n *node) findAll(local string) []*node {
	var exact, loose []*node
	n.walk(func(c *node) {
		if c.XMLName.Local != local {
			return
		}
		if c.XMLName.Space == Namespace {
			exact = append(exact, c)
		}
		loose = append(loose, c)
	})
	if len(exact) > 0 {
		return exact
	}
	return loose
}

// childText returns the trimmed text of the first child named local.
func (n *node) childText(local string) (string, bool) {
	var fallback *node
	for i := range n.Children {
		c := &n.Children[i]
		if c.XMLName.Local != local {
			continue
		}
		if c.XMLName.Space == Namespace {
			return strings.TrimSpace(c.Text), true
		}
		if fallback == nil {
			fallback = c
		}
	}
	if fallback != nil {
		return strings.TrimSpace(fallback.Text), true
	}
	return "", false
}
