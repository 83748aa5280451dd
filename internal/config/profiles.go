package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/tidewire/internal/providers"
)

// ProfilesPath returns the user profile overlay: ~/.tidewire/profiles.yaml.
func ProfilesPath() string {
	return filepath.Join(DataDir(), "profiles.yaml")
}

type profilesFile struct {
	Profiles []providers.ProfileSpec `yaml:"profiles"`
}

// LoadProfiles reads extra provider profiles from a YAML file. A missing
// file yields no profiles.
//
//	profiles:
//	  - id: local
//	    wire: openai
//	    baseEndpoint: http://localhost:11434/v1
//	    defaultModel: llama3
func LoadProfiles(path string) ([]providers.ProfileSpec, error) {
	if path == "" {
		path = ProfilesPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}
	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	for _, spec := range f.Profiles {
		if _, err := providers.NewProfile(spec); err != nil {
			return nil, fmt.Errorf("profiles %s: %w", path, err)
		}
	}
	return f.Profiles, nil
}

// BuildCatalog returns the built-in catalog overlaid with the profiles file.
func BuildCatalog(profilesPath string) (*providers.Catalog, error) {
	catalog := providers.NewCatalog()
	specs, err := LoadProfiles(profilesPath)
	if err != nil {
		return nil, err
	}
	if err := catalog.AddSpecs(specs); err != nil {
		return nil, err
	}
	return catalog, nil
}
