// Package store holds the per-tenant bounded history of finalized
// DataPackages (the φ-8 window) and tenant key derivation.
package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

// WindowSize is the number of packages retained per tenant.
const WindowSize = 8

// DefaultSessionTTL is how long an idle tenant entry survives.
const DefaultSessionTTL = time.Hour

// tenantEntry tracks one tenant's package history.
type tenantEntry struct {
	packages     []*models.PackageSnapshot // insertion order, oldest first
	createdAt    time.Time
	lastActivity time.Time
}

// TenantPackageStore maps tenant keys to their bounded package histories.
// Writes are serialized per store; eviction is strict FIFO by insertion
// order — reads never refresh recency.
type TenantPackageStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenantEntry
	ttl     time.Duration
}

// NewTenantPackageStore creates an empty store with the default session TTL.
func NewTenantPackageStore() *TenantPackageStore {
	return &TenantPackageStore{
		tenants: make(map[string]*tenantEntry),
		ttl:     DefaultSessionTTL,
	}
}

// StorePackage snapshots the package and appends it to the tenant's window,
// evicting the oldest entries beyond WindowSize.
func (s *TenantPackageStore) StorePackage(tenantID string, pkg *models.DataPackage) error {
	snap, err := pkg.ToSnapshot()
	if err != nil {
		return fmt.Errorf("snapshot package %s: %w", pkg.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tenants[tenantID]
	if !ok {
		entry = &tenantEntry{createdAt: time.Now()}
		s.tenants[tenantID] = entry
	}
	entry.packages = append(entry.packages, snap)
	for len(entry.packages) > WindowSize {
		evicted := entry.packages[0]
		entry.packages = entry.packages[1:]
		slog.Debug("Evicted oldest package from tenant window",
			"tenant", tenantID, "package_id", evicted.ID)
	}
	entry.lastActivity = time.Now()
	return nil
}

// GetRecentPackages returns the newest n packages in insertion order, each
// restored into a fresh DataPackage.
func (s *TenantPackageStore) GetRecentPackages(tenantID string, n int) ([]*models.DataPackage, error) {
	if n <= 0 || n > WindowSize {
		n = WindowSize
	}

	s.mu.RLock()
	entry, ok := s.tenants[tenantID]
	var snaps []*models.PackageSnapshot
	if ok {
		start := len(entry.packages) - n
		if start < 0 {
			start = 0
		}
		snaps = append(snaps, entry.packages[start:]...)
	}
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	packages := make([]*models.DataPackage, 0, len(snaps))
	for _, snap := range snaps {
		pkg, err := models.FromSnapshot(snap)
		if err != nil {
			return nil, fmt.Errorf("restore package %s: %w", snap.ID, err)
		}
		packages = append(packages, pkg)
	}
	return packages, nil
}

// RecentSummaries returns compressed summaries of the newest n packages.
func (s *TenantPackageStore) RecentSummaries(tenantID string, n int) []models.CompressedSummary {
	packages, err := s.GetRecentPackages(tenantID, n)
	if err != nil {
		slog.Error("Failed to restore packages for summaries", "tenant", tenantID, "error", err)
		return nil
	}
	summaries := make([]models.CompressedSummary, 0, len(packages))
	for _, pkg := range packages {
		summaries = append(summaries, pkg.Summarize())
	}
	return summaries
}

// HasPackage reports whether the tenant's window contains the package id.
func (s *TenantPackageStore) HasPackage(tenantID, packageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.tenants[tenantID]
	if !ok {
		return false
	}
	for _, snap := range entry.packages {
		if snap.ID == packageID {
			return true
		}
	}
	return false
}

// PackageCount returns the number of packages held for a tenant.
func (s *TenantPackageStore) PackageCount(tenantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.tenants[tenantID]; ok {
		return len(entry.packages)
	}
	return 0
}

// TenantCount returns the number of live tenant entries.
func (s *TenantPackageStore) TenantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants)
}

// NukeTenant removes a tenant's entire history.
func (s *TenantPackageStore) NukeTenant(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tenants, tenantID)
}

// Sweep removes tenant entries idle past the session TTL and returns how
// many were dropped. Called by the cleanup service.
func (s *TenantPackageStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.tenants {
		if now.Sub(entry.lastActivity) > s.ttl {
			delete(s.tenants, id)
			removed++
		}
	}
	return removed
}
