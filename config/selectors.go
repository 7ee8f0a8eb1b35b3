package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Selectors names every page element the portal driver touches. The defaults
// target LSF behind a Microsoft SSO login; a YAML profile can override
// individual entries when the portal markup changes, without a rebuild.
type Selectors struct {
	// SSOButton starts the external login flow from the LSF login page.
	SSOButton string `yaml:"sso_button"`
	// Microsoft SSO form fields.
	UsernameInput string `yaml:"username_input"`
	PasswordInput string `yaml:"password_input"`
	SubmitButton  string `yaml:"submit_button"`
	// AuthError matches the SSO credential rejection banner.
	AuthError string `yaml:"auth_error"`

	// MenuLink matches the LSF navigation menu entries.
	MenuLink string `yaml:"menu_link"`
	// GradesLinkText is the substring identifying the grades menu entry.
	GradesLinkText string `yaml:"grades_link_text"`
	// TreeList and TreeListLink locate the degree-program tree on the
	// grades overview page.
	TreeList     string `yaml:"tree_list"`
	TreeListLink string `yaml:"tree_list_link"`
	// ContentRegion wraps the grade table that gets snapshotted.
	ContentRegion string `yaml:"content_region"`

	// PostLoginIndicators are elements whose presence means the login/MFA
	// redirect chain has finished on the portal side.
	PostLoginIndicators []string `yaml:"post_login_indicators"`
}

// DefaultSelectors returns the built-in LSF + Microsoft SSO profile.
func DefaultSelectors() *Selectors {
	s := &Selectors{}
	s.applyDefaults()
	return s
}

// LoadSelectors reads a YAML selector profile. An empty path returns the
// defaults; fields left empty in the file fall back to the defaults.
func LoadSelectors(path string) (*Selectors, error) {
	if path == "" {
		return DefaultSelectors(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read selectors: %w", err)
	}

	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config: parse selectors: %w", err)
	}

	s.applyDefaults()
	return &s, nil
}

func (s *Selectors) applyDefaults() {
	if s.SSOButton == "" {
		s.SSOButton = ".azure"
	}
	if s.UsernameInput == "" {
		s.UsernameInput = "#i0116"
	}
	if s.PasswordInput == "" {
		s.PasswordInput = "#i0118"
	}
	if s.SubmitButton == "" {
		s.SubmitButton = "#idSIButton9"
	}
	if s.AuthError == "" {
		s.AuthError = "#usernameError, #passwordError"
	}
	if s.MenuLink == "" {
		s.MenuLink = ".auflistung"
	}
	if s.GradesLinkText == "" {
		s.GradesLinkText = "Notenspiegel"
	}
	if s.TreeList == "" {
		s.TreeList = ".treelist"
	}
	if s.TreeListLink == "" {
		s.TreeListLink = ".treelist a"
	}
	if s.ContentRegion == "" {
		s.ContentRegion = ".content"
	}
	if len(s.PostLoginIndicators) == 0 {
		s.PostLoginIndicators = []string{".auflistung", ".treelist", ".content"}
	}
}
