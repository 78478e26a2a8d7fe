package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/leakbox/internal/model"
)

// cssURLPattern matches url(...) functional values with optional quotes.
var cssURLPattern = regexp.MustCompile(`(?i)url\(\s*['"]?([^'")]*?)['"]?\s*\)`)

// FromHTML extracts links from an HTML document.
// Links that do not resolve to an absolute http or https URL are dropped.
// Unparseable input yields an empty inventory.
func FromHTML(html string) model.Inventory {
	inv := make(model.Inventory, 0)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return inv
	}

	base := documentBase(doc)
	add := func(raw string, role model.LinkRole, width, height string) {
		abs, ok := resolve(base, raw)
		if !ok {
			return
		}
		inv = append(inv, model.Link{URL: abs, Role: role, Width: width, Height: height})
	}

	doc.Find("[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if goquery.NodeName(s) == "img" {
			add(src, model.RoleImage, trimmedAttr(s, "width"), trimmedAttr(s, "height"))
			return
		}
		add(src, model.RoleMedia, "", "")
	})

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href, model.RoleImport, "", "")
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href, model.RoleAnchor, "", "")
	})

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, raw := range CSSURLs(s.Text()) {
			add(raw, model.RoleCSSImage, "", "")
		}
	})

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, raw := range CSSURLs(style) {
			add(raw, model.RoleCSSImage, "", "")
		}
	})

	return inv
}

// CSSURLs returns every url(...) value in css, in order, excluding data: URIs.
// The values are returned as written, without resolution.
func CSSURLs(css string) []string {
	matches := cssURLPattern.FindAllStringSubmatch(css, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		v := strings.TrimSpace(m[1])
		if v == "" || strings.HasPrefix(strings.ToLower(v), "data:") {
			continue
		}
		urls = append(urls, v)
	}
	return urls
}

// documentBase returns the parsed <base href> of doc, or nil.
func documentBase(doc *goquery.Document) *url.URL {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || !u.IsAbs() {
		return nil
	}
	return u
}

// resolve makes raw absolute against base and accepts only http(s) URLs.
func resolve(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	return u.String(), true
}

func trimmedAttr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}
