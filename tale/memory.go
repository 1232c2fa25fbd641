package tale

import (
	"context"
	"math"
	"sort"

	"github.com/theimaginaryfoundation/tale-studio/tale/apperr"
)

const relatedParagraphsCount = 2

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float64, error)
}

// relatedParagraphs returns the k earlier paragraphs most similar to query, most similar first.
// The latest paragraph is excluded since it is always part of the prompt.
func relatedParagraphs(ctx context.Context, e Embedder, model string, query string, paragraphs []string, k int) ([]string, error) {
	if len(paragraphs) < 2 || k <= 0 {
		return nil, nil
	}
	candidates := paragraphs[:len(paragraphs)-1]
	vectors, err := e.Embed(ctx, model, append([]string{query}, candidates...))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUpstream, "embed paragraphs")
	}
	if len(vectors) != len(candidates)+1 {
		return nil, apperr.Newf(apperr.CodeUpstream, "embedder returned %d vectors for %d texts", len(vectors), len(candidates)+1)
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i := range candidates {
		ranked[i] = scored{idx: i, score: cosine(vectors[0], vectors[i+1])}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	out := make([]string, 0, k)
	for _, r := range ranked[:min(k, len(ranked))] {
		out = append(out, candidates[r.idx])
	}
	return out, nil
}

func cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
