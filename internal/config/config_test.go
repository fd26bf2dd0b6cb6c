package config

import (
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.RoleName != DefaultRoleName {
		t.Errorf("expected role %q, got %q", DefaultRoleName, cfg.RoleName)
	}
	if cfg.SessionDurationSeconds != DefaultSessionDuration {
		t.Errorf("expected duration %d, got %d", DefaultSessionDuration, cfg.SessionDurationSeconds)
	}
	if cfg.DiscoverRegions {
		t.Error("region discovery must be off by default")
	}
	if len(cfg.Regions) == 0 {
		t.Error("expected a default region list")
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RoleName != DefaultRoleName {
		t.Errorf("expected defaults, got role %q", cfg.RoleName)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Accounts = map[string]string{"prod": "111111111111", "dev": "222222222222"}
	cfg.Regions = []string{"us-east-1", "eu-west-1"}
	cfg.ExternalID = "corp-4821"
	cfg.DiscoverRegions = true

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Accounts["dev"] != "222222222222" {
		t.Errorf("account registry not preserved: %v", got.Accounts)
	}
	if len(got.Regions) != 2 || got.Regions[1] != "eu-west-1" {
		t.Errorf("region order not preserved: %v", got.Regions)
	}
	if got.ExternalID != "corp-4821" {
		t.Errorf("external id not preserved: %q", got.ExternalID)
	}
	if !got.DiscoverRegions {
		t.Error("discover_regions not preserved")
	}
}

func TestSortedAccountsIsDeterministic(t *testing.T) {
	cfg := Default()
	cfg.Accounts = map[string]string{
		"prod":    "111111111111",
		"dev":     "222222222222",
		"sandbox": "333333333333",
	}

	first := cfg.SortedAccounts()
	for i := 0; i < 10; i++ {
		again := cfg.SortedAccounts()
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("iteration order changed: %v vs %v", first, again)
			}
		}
	}

	if first[0].Name != "dev" || first[1].Name != "prod" || first[2].Name != "sandbox" {
		t.Errorf("expected name-sorted order, got %v", first)
	}
}
