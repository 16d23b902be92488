package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainknowledge "github.com/agentloop/backend/internal/domain/knowledge"
)

func resultWithScore(score float32) *domainknowledge.SearchResult {
	return &domainknowledge.SearchResult{Similarity: score}
}

func TestApplyThreshold_BoundaryIsInclusive(t *testing.T) {
	results := []*domainknowledge.SearchResult{
		resultWithScore(0.849999),
		resultWithScore(0.85),
		resultWithScore(0.9),
	}

	filtered := applyThreshold(results, 0.85)

	require.Len(t, filtered, 2)
	// 恰好等于阈值的命中保留，低于阈值的剔除
	assert.Equal(t, float32(0.85), filtered[0].Similarity)
	assert.Equal(t, float32(0.9), filtered[1].Similarity)
}

func TestApplyThreshold_EmptyResultIsValid(t *testing.T) {
	filtered := applyThreshold([]*domainknowledge.SearchResult{
		resultWithScore(0.1),
		resultWithScore(0.5),
	}, 0.85)

	assert.Empty(t, filtered)
}

func TestSortAndLimit(t *testing.T) {
	results := []*domainknowledge.SearchResult{
		resultWithScore(0.86),
		resultWithScore(0.99),
		resultWithScore(0.91),
		resultWithScore(0.88),
	}

	limited := sortAndLimit(results, 3)

	require.Len(t, limited, 3)
	assert.Equal(t, float32(0.99), limited[0].Similarity)
	assert.Equal(t, float32(0.91), limited[1].Similarity)
	assert.Equal(t, float32(0.88), limited[2].Similarity)
}

func TestSortAndLimit_FewerResultsThanLimit(t *testing.T) {
	results := []*domainknowledge.SearchResult{resultWithScore(0.9)}
	assert.Len(t, sortAndLimit(results, 5), 1)
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"bom stripped", "\uFEFFhello", "hello"},
		{"crlf normalized", "a\r\nb\rc", "a\nb\nc"},
		{"trimmed", "  body  \n", "body"},
		{"invalid utf8 removed", "ok\xffbad", "okbad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}
