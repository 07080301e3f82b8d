package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const DefaultLocalDimension = 384

// HashingModel is an offline bag-of-words embedder. Each word and each of its
// character trigrams is hashed into one of dim buckets with a hash-derived
// sign, then the vector is L2-normalized. Identical text always maps to the
// identical vector.
type HashingModel struct {
	dim int
}

func NewHashingModel(dim int) (*HashingModel, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hashing model: dimension %d must be positive", dim)
	}
	return &HashingModel{dim: dim}, nil
}

// LocalLoader builds the on-device model. It never touches the network.
func LocalLoader(dim int) Loader {
	return func(ctx context.Context, report ProgressFunc) (Model, error) {
		report(0)
		m, err := NewHashingModel(dim)
		if err != nil {
			return nil, err
		}
		report(100)
		return m, nil
	}
}

func (m *HashingModel) Name() string   { return fmt.Sprintf("local-hashing-%d", m.dim) }
func (m *HashingModel) Dimension() int { return m.dim }

func (m *HashingModel) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dim)

	for _, word := range tokenize(text) {
		m.add(vec, word, 1.0)
		padded := []rune("#" + word + "#")
		for i := 0; i+3 <= len(padded); i++ {
			m.add(vec, string(padded[i:i+3]), 0.5)
		}
	}

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq > 0 {
		norm := float32(1.0 / math.Sqrt(sumSq))
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec, nil
}

func (m *HashingModel) add(vec []float32, feature string, weight float32) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum32()
	if sum&(1<<31) != 0 {
		weight = -weight
	}
	vec[int(sum%uint32(m.dim))] += weight
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	words := fields[:0]
	for _, w := range fields {
		if stopWords[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}

var stopWords = map[string]bool{
	"i": true, "me": true, "my": true, "we": true, "our": true, "you": true, "your": true,
	"he": true, "him": true, "his": true, "she": true, "her": true, "it": true, "its": true,
	"they": true, "them": true, "their": true, "this": true, "that": true, "these": true,
	"those": true, "am": true, "is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "a": true, "an": true, "the": true, "and": true, "but": true, "if": true,
	"or": true, "as": true, "of": true, "at": true, "by": true, "for": true, "with": true,
	"about": true, "into": true, "to": true, "from": true, "in": true, "on": true, "so": true,
	"than": true, "too": true, "very": true, "s": true, "t": true, "can": true, "will": true,
	"just": true, "what": true, "which": true, "who": true,
}
