package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	action, resource, qualifier, err := ParseKey("hardDelete.businesses.enable")
	require.NoError(t, err)
	require.Equal(t, "hardDelete", action)
	require.Equal(t, "businesses", resource)
	require.Equal(t, "enable", qualifier)

	for _, bad := range []string{"", "view", "view.businesses", "view..enable", "a.b.c.d"} {
		_, _, _, err := ParseKey(bad)
		require.ErrorIs(t, err, ErrInvalidKey, "key %q", bad)
	}
}

func TestCatalogKeysAreUniqueAndWellFormed(t *testing.T) {
	defs := Catalog()
	require.NotEmpty(t, defs)

	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		_, _, _, err := ParseKey(def.Key)
		require.NoError(t, err, "key %q", def.Key)
		require.NotEmpty(t, def.Description, "key %q needs a description", def.Key)
		_, dup := seen[def.Key]
		require.False(t, dup, "duplicate catalog key %q", def.Key)
		seen[def.Key] = struct{}{}
	}
}

func TestSeedCatalogIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	require.NoError(t, SeedCatalog(ctx, store))
	first, err := store.ListPermissions(ctx)
	require.NoError(t, err)

	require.NoError(t, SeedCatalog(ctx, store))
	second, err := store.ListPermissions(ctx)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second), "re-seeding must not create rows")
	require.Equal(t, first, second)
}

func TestHardDeleteOverrideKey(t *testing.T) {
	require.Equal(t, "hardDelete.service_locations.enable", HardDeleteOverrideKey("service_locations"))
}
