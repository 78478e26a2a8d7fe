package model

// LinkRole classifies where a link was found in a message body.
type LinkRole string

const (
	// RoleImage is the src of an <img> element.
	RoleImage LinkRole = "image"

	// RoleMedia is the src of any other element (script, iframe, video, ...).
	RoleMedia LinkRole = "media"

	// RoleImport is the href of a <link> element, usually a stylesheet.
	RoleImport LinkRole = "import"

	// RoleAnchor is the href of an <a> element.
	RoleAnchor LinkRole = "anchor"

	// RoleCSSImage is a url(...) value found in inline CSS.
	RoleCSSImage LinkRole = "css-image"
)

// Link is a candidate resource extracted from a message body.
type Link struct {
	// URL is the absolute URL of the resource.
	URL string `json:"url"`

	// Role tells where the link was found.
	Role LinkRole `json:"role"`

	// Width and Height are the raw declared dimensions of an image.
	// They are opaque tokens and are only ever compared against "1".
	Width  string `json:"width,omitempty"`
	Height string `json:"height,omitempty"`
}

// IsTrackingPixel reports whether the link is an image declared as 1x1.
func (l Link) IsTrackingPixel() bool {
	return l.Role == RoleImage && l.Width == "1" && l.Height == "1"
}

// IsImageLike reports whether the link is fetched automatically when the
// message is rendered (an <img> source or a CSS background).
func (l Link) IsImageLike() bool {
	return l.Role == RoleImage || l.Role == RoleCSSImage
}

// Inventory is the flat list of links extracted from a message, in the order
// the extractor emitted them.
type Inventory []Link

// ByRole returns the links with the given role, preserving order.
func (inv Inventory) ByRole(role LinkRole) []Link {
	links := make([]Link, 0)
	for _, l := range inv {
		if l.Role == role {
			links = append(links, l)
		}
	}
	return links
}

// Images returns the <img> links.
func (inv Inventory) Images() []Link {
	return inv.ByRole(RoleImage)
}

// CSSImages returns the links found in inline CSS.
func (inv Inventory) CSSImages() []Link {
	return inv.ByRole(RoleCSSImage)
}

// URLs returns every URL in order, including duplicates.
func (inv Inventory) URLs() []string {
	urls := make([]string, len(inv))
	for i, l := range inv {
		urls[i] = l.URL
	}
	return urls
}

// Variant is a named deterministic transformation of a recipient address.
type Variant struct {
	// Name identifies the transformation (e.g. "raw", "md5").
	Name string `json:"name"`

	// Value is the transformed address searched for inside candidate strings.
	Value string `json:"value"`
}
