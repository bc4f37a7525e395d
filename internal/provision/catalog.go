// ABOUTME: Stamp catalog page parsing
// ABOUTME: Indexes <img data-image-key=...> elements of the wiki page by stamp file name

package provision

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/2389/limimin/internal/stamp"
)

// thumbnailSegment scales wiki images down to preview width.
// Removing it from an image URL yields the full-resolution asset.
const thumbnailSegment = "/scale-to-width-down/80"

// Catalog maps a stamp file name to the image URL found on the catalog page.
type Catalog map[string]string

// ParseCatalog reads catalog page markup and indexes every image carrying a
// data-image-key attribute. Relative URLs are resolved against base.
// The first image seen for a key wins.
func ParseCatalog(r io.Reader, base *url.URL) (Catalog, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog page: %w", err)
	}

	cat := make(Catalog)
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			key, src := imageKeyAndSource(n)
			if key != "" && src != "" {
				if _, seen := cat[key]; !seen {
					cat[key] = resolve(base, src)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	return cat, nil
}

// imageKeyAndSource pulls data-image-key and the usable image URL from an img node.
// Lazy-loaded images carry an inline data: placeholder in src and the real URL in data-src.
func imageKeyAndSource(n *html.Node) (key, src string) {
	var dataSrc string
	for _, a := range n.Attr {
		switch a.Key {
		case "data-image-key":
			key = a.Val
		case "src":
			src = a.Val
		case "data-src":
			dataSrc = a.Val
		}
	}
	if src == "" || strings.HasPrefix(src, "data:") {
		src = dataSrc
	}
	return key, strings.TrimSpace(src)
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// ImageURL returns the download URL of the stamp file name in the given size.
func (c Catalog) ImageURL(name string, size stamp.Size) (string, error) {
	u, ok := c[name]
	if !ok {
		return "", fmt.Errorf("%s not found on catalog page", name)
	}
	if size == stamp.Large {
		u = strings.ReplaceAll(u, thumbnailSegment, "")
	}
	return u, nil
}
