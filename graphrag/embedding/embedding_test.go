package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderIsDeterministic(t *testing.T) {
	e := NewHashEmbedder(16)
	a, err := e.Embed(context.Background(), "summarize this document")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "summarize this document")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashEmbedderDistinguishesDifferentText(t *testing.T) {
	e := NewHashEmbedder(16)
	a, _ := e.Embed(context.Background(), "fetch the weather")
	b, _ := e.Embed(context.Background(), "compile the report")
	assert.NotEqual(t, a, b)
}

func TestHashEmbedderEmptyTextReturnsZeroVector(t *testing.T) {
	e := NewHashEmbedder(8)
	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, x := range v {
		assert.Equal(t, 0.0, x)
	}
}

func TestHashEmbedderDefaultsDimWhenNonPositive(t *testing.T) {
	e := NewHashEmbedder(0)
	assert.Equal(t, 64, e.Dim())
}

func TestHashEmbedderOutputIsUnitNorm(t *testing.T) {
	e := NewHashEmbedder(32)
	v, err := e.Embed(context.Background(), "a reasonably long piece of intent text")
	require.NoError(t, err)
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}
