package variant

import (
	"crypto/md5"  //nolint:gosec // trackers use md5 to embed addresses, we only compare
	"crypto/sha1" //nolint:gosec // same as above
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/nao1215/leakbox/internal/model"
	"golang.org/x/crypto/sha3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Variant names in generation order.
const (
	NameRaw         = "raw"
	NameLowercase   = "lowercase"
	NameLocalPart   = "local-part"
	NameURLEncoded  = "url-encoded"
	NameBase64      = "base64"
	NameBase64URL   = "base64url"
	NameMD5         = "md5"
	NameSHA1        = "sha1"
	NameSHA256      = "sha256"
	NameSHA3_256    = "sha3-256"
	NameSHA256Upper = "sha256-upper"
)

// transform is a single named transformation.
type transform struct {
	name string
	fn   func(address string) string
}

var lower = cases.Lower(language.Und)

// transforms lists every transformation in output order.
// Hashes are computed over the lowercased address because that is what
// mailing platforms normalize to before hashing.
var transforms = []transform{
	{NameRaw, func(a string) string { return a }},
	{NameLowercase, func(a string) string { return lower.String(a) }},
	{NameLocalPart, localPart},
	{NameURLEncoded, url.QueryEscape},
	{NameBase64, func(a string) string {
		return strings.TrimRight(base64.StdEncoding.EncodeToString([]byte(a)), "=")
	}},
	{NameBase64URL, func(a string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(a))
	}},
	{NameMD5, func(a string) string {
		sum := md5.Sum([]byte(lower.String(a))) //nolint:gosec
		return hex.EncodeToString(sum[:])
	}},
	{NameSHA1, func(a string) string {
		sum := sha1.Sum([]byte(lower.String(a))) //nolint:gosec
		return hex.EncodeToString(sum[:])
	}},
	{NameSHA256, func(a string) string {
		sum := sha256.Sum256([]byte(lower.String(a)))
		return hex.EncodeToString(sum[:])
	}},
	{NameSHA3_256, func(a string) string {
		sum := sha3.Sum256([]byte(lower.String(a)))
		return hex.EncodeToString(sum[:])
	}},
	{NameSHA256Upper, func(a string) string {
		sum := sha256.Sum256([]byte(lower.String(a)))
		return strings.ToUpper(hex.EncodeToString(sum[:]))
	}},
}

// localPart returns the part before the last '@', or "" when there is none.
func localPart(address string) string {
	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return ""
	}
	return address[:at]
}

// Generate returns the identifier variants of address.
//
// The result is deterministic: the same address always yields the same
// variants in the same order. Empty values are never returned, and when two
// transformations yield the same value only the first one is kept.
// Generate returns nil for an empty address.
func Generate(address string) []model.Variant {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}

	seen := make(map[string]struct{}, len(transforms))
	variants := make([]model.Variant, 0, len(transforms))
	for _, t := range transforms {
		v := t.fn(address)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		variants = append(variants, model.Variant{Name: t.name, Value: v})
	}
	return variants
}
