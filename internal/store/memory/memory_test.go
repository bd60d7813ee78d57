package memory

import (
	"context"
	"testing"

	"github.com/AbduElrahman2001/BALHA/internal/store"
	"github.com/AbduElrahman2001/BALHA/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend(t *testing.T) {
	storetest.RunBackendTests(t, func(t *testing.T) store.Backend {
		return New()
	})
}

func TestValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	b := New()
	value := []byte(`"abc"`)
	require.NoError(t, b.Set(ctx, "k", value))
	value[1] = 'x'

	got, _, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(got))

	got[1] = 'y'
	again, _, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(again))
}
