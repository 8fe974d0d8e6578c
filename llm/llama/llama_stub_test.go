//go:build !llama

package llama

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/reactor"
)

func TestNew_Unavailable(t *testing.T) {
	_, err := New(Config{ModelPath: "m.gguf", ContextSize: 2000})
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = New(Config{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)

	var e *Endpoint
	_, err = e.Generate(context.Background(), reactor.Request{}, nil)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, e.Close())
}
