package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // register non-UTF-8 decoders
	"github.com/nao1215/leakbox/internal/model"
)

const (
	// MaxMultipartDepth bounds how deeply nested multiparts are followed.
	MaxMultipartDepth = 32

	// MaxPartBytes bounds how much of a single HTML part is read.
	MaxPartBytes = 10 << 20
)

// ErrMalformedMessage is returned when a message cannot be parsed at all.
var ErrMalformedMessage = errors.New("malformed message")

// FromMessage extracts links from every text/html part of an RFC 5322 message.
// Non-HTML leaves are skipped. Parts nested deeper than MaxMultipartDepth are
// ignored.
func FromMessage(r io.Reader) (model.Inventory, error) {
	entity, err := message.Read(r)
	if err != nil && !tolerable(err) {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	inv := make(model.Inventory, 0)

	root := entity.MultipartReader()
	if root == nil {
		links, err := fromLeaf(entity)
		if err != nil {
			return nil, err
		}
		return append(inv, links...), nil
	}

	stack := []message.MultipartReader{root}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		part, err := top.NextPart()
		if errors.Is(err, io.EOF) {
			stack = stack[:len(stack)-1]
			continue
		}
		if err != nil && !tolerable(err) {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		if part == nil {
			continue
		}

		if child := part.MultipartReader(); child != nil {
			if len(stack) < MaxMultipartDepth {
				stack = append(stack, child)
			}
			continue
		}

		links, err := fromLeaf(part)
		if err != nil {
			return nil, err
		}
		inv = append(inv, links...)
	}

	return inv, nil
}

// fromLeaf extracts links from a single non-multipart entity.
func fromLeaf(e *message.Entity) ([]model.Link, error) {
	mediaType, _, err := e.Header.ContentType()
	if err != nil || !strings.EqualFold(mediaType, "text/html") {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(e.Body, MaxPartBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading html part: %w", ErrMalformedMessage, err)
	}
	return FromHTML(string(body)), nil
}

// tolerable reports whether a parse error still leaves a usable entity.
func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
