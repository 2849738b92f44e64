package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	d := Default()
	if d.Farmers != 2 || d.WorkersPerFarmer != 4 {
		t.Errorf("Default() topology = %+v, want Farmers=2 WorkersPerFarmer=4", d)
	}
	if d.ListenAddr != "localhost:8001" {
		t.Errorf("Default() ListenAddr = %q, want localhost:8001", d.ListenAddr)
	}
}

func TestLoadWithNoFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("", t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load() = %+v, want Default()", cfg)
	}
}

func TestLoadReadsYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := "farmers: 5\nworkers_per_farmer: 3\nlisten_addr: \"0.0.0.0:9000\"\n"
	if err := os.WriteFile(filepath.Join(dir, "sitecrawler.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load("sitecrawler", dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Farmers != 5 {
		t.Errorf("Farmers = %d, want 5", cfg.Farmers)
	}
	if cfg.WorkersPerFarmer != 3 {
		t.Errorf("WorkersPerFarmer = %d, want 3", cfg.WorkersPerFarmer)
	}
	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("ListenAddr = %q, want 0.0.0.0:9000", cfg.ListenAddr)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want default 10s to survive an unrelated override", cfg.FetchTimeout)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load("does-not-exist", t.TempDir()); err != nil {
		t.Errorf("Load() error = %v, want nil for a missing optional config file", err)
	}
}
