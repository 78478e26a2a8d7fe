package address

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// ErrEmptyDomain is returned when Generate is called without a domain.
var ErrEmptyDomain = errors.New("address domain is empty")

// Generator produces random addresses. It is safe for concurrent use.
type Generator struct {
	words  []string
	random io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithRandom sets the entropy source. The default is crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.random = r
	}
}

// NewGenerator creates a Generator over the BIP-39 English word list.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		words:  bip39.GetWordList(),
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a new address at domain. Uniqueness is not checked here;
// callers retry on collision.
func (g *Generator) Generate(domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return "", ErrEmptyDomain
	}

	first, err := g.pick(int64(len(g.words)))
	if err != nil {
		return "", err
	}
	second, err := g.pick(int64(len(g.words)))
	if err != nil {
		return "", err
	}
	number, err := g.pick(10000)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s.%s.%04d@%s", g.words[first], g.words[second], number, domain), nil
}

func (g *Generator) pick(n int64) (int64, error) {
	v, err := rand.Int(g.random, big.NewInt(n))
	if err != nil {
		return 0, fmt.Errorf("failed to read randomness: %w", err)
	}
	return v.Int64(), nil
}
