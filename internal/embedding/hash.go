package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"
)

var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// HashProvider embeds text locally by feature hashing its tokens.
// Equal texts always map to equal vectors, which makes it suitable for
// offline use and tests.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a hashing embedder producing vectors of the given dimension
func NewHashProvider(dimension int) *HashProvider {
	return &HashProvider{dimension: dimension}
}

func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embed(text)
	}
	return out, nil
}

func (p *HashProvider) CheckHealth(context.Context) error {
	return nil
}

func (p *HashProvider) Name() string {
	return "hash"
}

// Dimension returns the vector length produced by the provider
func (p *HashProvider) Dimension() int {
	return p.dimension
}

func (p *HashProvider) embed(text string) []float32 {
	v := make([]float32, p.dimension)
	if p.dimension == 0 {
		return v
	}

	for _, token := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(p.dimension))
		// the top bit picks the sign so collisions tend to cancel out
		if sum>>63 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// tokenize lowercases text and splits it into words, also breaking
// camelCase and snake_case identifiers into their parts.
func tokenize(text string) []string {
	var tokens []string
	for _, match := range tokenRegex.FindAllString(text, -1) {
		for _, part := range splitCamelCase(match) {
			part = strings.ToLower(part)
			if len([]rune(part)) > 1 {
				tokens = append(tokens, part)
			}
		}
	}
	return tokens
}

// splitCamelCase splits a camelCase or snake_case string into words.
// Runs of capitals such as "HTTP" stay together.
func splitCamelCase(s string) []string {
	var result []string
	var current strings.Builder
	prev := rune(0)

	flush := func() {
		if current.Len() > 0 {
			result = append(result, current.String())
			current.Reset()
		}
	}

	for _, r := range s {
		switch {
		case r == '_':
			flush()
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
		prev = r
	}
	flush()

	return result
}
