package projectstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertRecordEqual(t *testing.T, want, got Record) {
	t.Helper()
	assert.Equal(t, want.ProjectStart.String(), got.ProjectStart.String())
	assert.Equal(t, want.ProjectEnd.String(), got.ProjectEnd.String())
	require.Len(t, got.Extensions, len(want.Extensions))
	for i := range want.Extensions {
		assert.Equal(t, want.Extensions[i].String(), got.Extensions[i].String())
	}
	assert.Equal(t, want.CommitInputs, got.CommitInputs)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at want %s got %s", want.UpdatedAt, got.UpdatedAt)
}

func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	key := Key("octo", "hello", "feature")

	record, found := store.Load(ctx, key)
	assert.False(t, found)
	assertRecordEqual(t, Default(fixedNow), record)

	want := sampleRecord()
	require.NoError(t, store.Save(ctx, key, want))

	got, found := store.Load(ctx, key)
	require.True(t, found)
	assertRecordEqual(t, want, got)

	other := Default(fixedNow)
	other.UpdatedAt = fixedNow
	require.NoError(t, store.Save(ctx, Key("octo", "hello", "main"), other))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"octo/hello@feature", "octo/hello@main"}, keys)

	want.CommitInputs["dddddddddddddddddddddddddddddddddddddddd"] = Annotation{Tag: "Security"}
	require.NoError(t, store.Save(ctx, key, want))
	got, _ = store.Load(ctx, key)
	assertRecordEqual(t, want, got)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	record, found = store.Load(ctx, key)
	assert.False(t, found)
	assertRecordEqual(t, Default(fixedNow), record)

	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"octo/hello@main"}, keys)
}
