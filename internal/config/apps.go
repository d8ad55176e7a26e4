package config

import (
	_ "embed"
	"fmt"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed apps.yaml
var defaultApps []byte

// App describes one managed application. Config and Env are relative to Dir
// unless absolute.
type App struct {
	Name       string `yaml:"-"`
	Dir        string `yaml:"dir"`
	PackageURL string `yaml:"package_url"`
	Config     string `yaml:"config"`
	Env        string `yaml:"env"`
}

// ConfigPath returns the absolute path of the app's main config file, or ""
// when the app has none.
func (a App) ConfigPath() string {
	return a.resolve(a.Config)
}

// EnvPath returns the absolute path of the app's .env file.
func (a App) EnvPath() string {
	return a.resolve(a.Env)
}

// PackagePath returns the path of the app's package.json.
func (a App) PackagePath() string {
	return a.resolve("package.json")
}

func (a App) resolve(p string) string {
	if p == "" || path.IsAbs(p) {
		return p
	}
	return path.Join(a.Dir, p)
}

// Catalog maps app names to their definitions.
type Catalog map[string]App

// LoadCatalog reads the app catalog from file, or the embedded default when
// file is empty.
func LoadCatalog(file string) (Catalog, error) {
	data := defaultApps
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read apps file: %w", err)
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML app catalog.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse apps: %w", err)
	}
	if len(c) == 0 {
		return nil, fmt.Errorf("parse apps: catalog is empty")
	}
	for name, app := range c {
		if app.Dir == "" {
			return nil, fmt.Errorf("parse apps: %s has no dir", name)
		}
		app.Name = name
		c[name] = app
	}
	return c, nil
}

// DefaultApp is used when APP_NAME names an app missing from the catalog.
const DefaultApp = "mirotalksfu"

// Select returns the named app, falling back to DefaultApp.
func (c Catalog) Select(name string) (App, error) {
	if app, ok := c[name]; ok {
		return app, nil
	}
	if app, ok := c[DefaultApp]; ok {
		return app, nil
	}
	return App{}, fmt.Errorf("app %q not in catalog", name)
}

// Names returns the catalog's app names in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
