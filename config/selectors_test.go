package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSelectors_EmptyPathReturnsDefaults(t *testing.T) {
	s, err := LoadSelectors("")
	if err != nil {
		t.Fatal(err)
	}
	if s.ContentRegion != ".content" {
		t.Fatalf("ContentRegion = %q", s.ContentRegion)
	}
	if s.GradesLinkText != "Notenspiegel" {
		t.Fatalf("GradesLinkText = %q", s.GradesLinkText)
	}
	if len(s.PostLoginIndicators) == 0 {
		t.Fatal("no default post-login indicators")
	}
}

func TestLoadSelectors_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	profile := "content_region: \"#grades\"\ngrades_link_text: Leistungen\n"
	if err := os.WriteFile(path, []byte(profile), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSelectors(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.ContentRegion != "#grades" {
		t.Fatalf("ContentRegion = %q, want #grades", s.ContentRegion)
	}
	if s.GradesLinkText != "Leistungen" {
		t.Fatalf("GradesLinkText = %q, want Leistungen", s.GradesLinkText)
	}
	// Untouched fields keep their defaults.
	if s.UsernameInput != "#i0116" {
		t.Fatalf("UsernameInput = %q, want default", s.UsernameInput)
	}
}

func TestLoadSelectors_MissingFile(t *testing.T) {
	if _, err := LoadSelectors(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadSelectors_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte(":\n\t- nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSelectors(path); err == nil {
		t.Fatal("expected error for bad yaml")
	}
}
