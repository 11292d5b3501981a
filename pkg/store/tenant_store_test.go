package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

func newFinalizedPackage(t *testing.T, tenantID, mode string) *models.DataPackage {
	t.Helper()
	pkg := models.NewDataPackage(tenantID)
	require.NoError(t, pkg.WriteStage(models.StagePreflight, map[string]any{"mode": mode}))
	pkg.Finalize()
	return pkg
}

func TestStorePackageEnforcesWindow(t *testing.T) {
	s := NewTenantPackageStore()

	var ids []string
	for i := 0; i < WindowSize+3; i++ {
		pkg := newFinalizedPackage(t, "t1", "general")
		ids = append(ids, pkg.ID)
		require.NoError(t, s.StorePackage("t1", pkg))
	}

	assert.Equal(t, WindowSize, s.PackageCount("t1"))

	// Oldest three evicted, newest eight retained in insertion order.
	recent, err := s.GetRecentPackages("t1", WindowSize)
	require.NoError(t, err)
	require.Len(t, recent, WindowSize)
	for i, pkg := range recent {
		assert.Equal(t, ids[i+3], pkg.ID)
	}
}

func TestGetRecentPackagesNewestN(t *testing.T) {
	s := NewTenantPackageStore()

	var ids []string
	for i := 0; i < 5; i++ {
		pkg := newFinalizedPackage(t, "t1", "general")
		ids = append(ids, pkg.ID)
		require.NoError(t, s.StorePackage("t1", pkg))
	}

	recent, err := s.GetRecentPackages("t1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[3], recent[0].ID)
	assert.Equal(t, ids[4], recent[1].ID)
}

func TestGetRecentPackagesReturnsRestoredCopies(t *testing.T) {
	s := NewTenantPackageStore()
	pkg := newFinalizedPackage(t, "t1", "forex")
	require.NoError(t, s.StorePackage("t1", pkg))

	first, err := s.GetRecentPackages("t1", 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Restored packages keep finalization state.
	assert.True(t, first[0].Finalized)
	assert.Equal(t, "forex", first[0].ReadStage(models.StagePreflight)["mode"])

	second, err := s.GetRecentPackages("t1", 1)
	require.NoError(t, err)
	assert.NotSame(t, first[0], second[0])
}

func TestTenantsAreIsolated(t *testing.T) {
	s := NewTenantPackageStore()
	pkgA := newFinalizedPackage(t, "ta", "general")
	pkgB := newFinalizedPackage(t, "tb", "general")
	require.NoError(t, s.StorePackage("ta", pkgA))
	require.NoError(t, s.StorePackage("tb", pkgB))

	assert.True(t, s.HasPackage("ta", pkgA.ID))
	assert.False(t, s.HasPackage("tb", pkgA.ID))
	assert.False(t, s.HasPackage("ta", pkgB.ID))
}

func TestConcurrentTenantsKeepLastEight(t *testing.T) {
	s := NewTenantPackageStore()

	var wg sync.WaitGroup
	for _, tenant := range []string{"ta", "tb"} {
		wg.Add(1)
		go func(tenant string) {
			defer wg.Done()
			for i := 0; i < 9; i++ {
				pkg := models.NewDataPackage(tenant)
				_ = pkg.WriteStage(models.StageOutput, map[string]any{"n": i})
				pkg.Finalize()
				_ = s.StorePackage(tenant, pkg)
			}
		}(tenant)
	}
	wg.Wait()

	assert.Equal(t, WindowSize, s.PackageCount("ta"))
	assert.Equal(t, WindowSize, s.PackageCount("tb"))
}

func TestNukeTenant(t *testing.T) {
	s := NewTenantPackageStore()
	require.NoError(t, s.StorePackage("t1", newFinalizedPackage(t, "t1", "general")))

	s.NukeTenant("t1")
	assert.Equal(t, 0, s.PackageCount("t1"))

	recent, err := s.GetRecentPackages("t1", 8)
	require.NoError(t, err)
	assert.Nil(t, recent)
}

func TestSweepRemovesIdleTenants(t *testing.T) {
	s := NewTenantPackageStore()
	require.NoError(t, s.StorePackage("t1", newFinalizedPackage(t, "t1", "general")))

	assert.Equal(t, 0, s.Sweep(time.Now()))
	assert.Equal(t, 1, s.Sweep(time.Now().Add(2*time.Hour)))
	assert.Equal(t, 0, s.TenantCount())
}

func TestDeriveTenantKey(t *testing.T) {
	key := DeriveTenantKey("203.0.113.7", "Mozilla/5.0", "salt")
	assert.Len(t, key, 16)

	// Stable for same inputs, distinct for different inputs.
	assert.Equal(t, key, DeriveTenantKey("203.0.113.7", "Mozilla/5.0", "salt"))
	assert.NotEqual(t, key, DeriveTenantKey("203.0.113.8", "Mozilla/5.0", "salt"))
	assert.NotEqual(t, key, DeriveTenantKey("203.0.113.7", "Mozilla/5.0", "pepper"))
}
