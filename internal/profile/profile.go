// Package profile holds the industry profiles a session can be started
// with: greeting, offered services, house rules and the keypad menu the
// assistant describes on request.
package profile

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/chadiek/voicebot/internal/logging"
)

// DefaultKey is used when a caller names no profile or an unknown one.
const DefaultKey = "medical-practice"

// MenuEntry is one keypad option.
type MenuEntry struct {
	Digit string `yaml:"digit" json:"digit"`
	Label string `yaml:"label" json:"label"`
}

// Profile configures the assistant for one kind of business.
type Profile struct {
	Key             string      `yaml:"-" json:"key"`
	Label           string      `yaml:"label" json:"label"`
	Assistant       string      `yaml:"assistant" json:"-"`
	Customers       string      `yaml:"customers" json:"-"`
	Services        []string    `yaml:"services" json:"-"`
	Emergency       string      `yaml:"emergency" json:"-"`
	Confidentiality string      `yaml:"confidentiality" json:"-"`
	Rules           string      `yaml:"rules" json:"-"`
	Hours           string      `yaml:"hours" json:"-"`
	Greeting        string      `yaml:"greeting" json:"-"`
	Menu            []MenuEntry `yaml:"menu" json:"-"`
}

// Catalog is a set of profiles keyed by profile key. Lookups are safe for
// concurrent use with Merge.
type Catalog struct {
	mu         sync.RWMutex
	profiles   map[string]Profile
	defaultKey string
}

// NewCatalog returns the builtin profiles with defaultKey as fallback. An
// unknown defaultKey is replaced by DefaultKey.
func NewCatalog(defaultKey string) *Catalog {
	c := &Catalog{profiles: make(map[string]Profile, len(builtin))}
	for k, p := range builtin {
		p.Key = k
		c.profiles[k] = p
	}
	if _, ok := c.profiles[defaultKey]; !ok {
		if defaultKey != "" {
			logging.Warnw("unknown default profile, using builtin default", "profile", defaultKey, "default", DefaultKey)
		}
		defaultKey = DefaultKey
	}
	c.defaultKey = defaultKey
	return c
}

// DefaultKey the catalog falls back to.
func (c *Catalog) DefaultKey() string { return c.defaultKey }

// Lookup returns the profile for key, or the default profile when key is
// empty or unknown. The second result reports whether key matched.
func (c *Catalog) Lookup(key string) (Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.profiles[key]; ok {
		return p, true
	}
	return c.profiles[c.defaultKey], false
}

// List returns all profiles ordered by key.
func (c *Catalog) List() []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Merge adds or replaces profiles. Entries without a greeting are rejected.
func (c *Catalog) Merge(profiles map[string]Profile) error {
	for k, p := range profiles {
		if strings.TrimSpace(p.Greeting) == "" {
			return fmt.Errorf("profile %q: greeting is required", k)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, p := range profiles {
		p.Key = k
		if p.Label == "" {
			p.Label = k
		}
		c.profiles[k] = p
	}
	return nil
}

// LoadFile merges the YAML profile map at path into c.
func (c *Catalog) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profiles: %w", err)
	}
	var file map[string]Profile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return fmt.Errorf("parse profiles %s: %w", path, err)
	}
	if err := c.Merge(file); err != nil {
		return err
	}
	logging.Infow("profiles loaded", "path", path, "count", len(file))
	return nil
}

// SystemPrompt renders the generation context for p. company overrides the
// profile label as the business name.
func SystemPrompt(p Profile, company string) string {
	name := company
	if name == "" {
		name = p.Label
	}
	hours := p.Hours
	if hours == "" {
		hours = "Bitte erfragen"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Du bist die %s von %q.\n", p.Assistant, name)
	fmt.Fprintf(&b, "Du führst ein Telefongespräch mit einem Anrufer (%s).\n\n", p.Customers)
	b.WriteString("Deine Aufgaben:\n")
	b.WriteString("1. Freundlich, natürlich und professionell antworten.\n")
	fmt.Fprintf(&b, "2. Verfügbare Dienste: %s.\n", strings.Join(p.Services, ", "))
	fmt.Fprintf(&b, "3. Öffnungszeiten: %s.", hours)

	n := 4
	for _, line := range []string{
		prefixed("Du wahrst die ", p.Confidentiality, "."),
		p.Rules,
		prefixed("Notfall-Hinweis: ", p.Emergency, ""),
	} {
		if line == "" {
			continue
		}
		fmt.Fprintf(&b, "\n%d. %s", n, line)
		n++
	}

	if len(p.Menu) > 0 {
		b.WriteString("\n\nTastenmenü (falls der Anrufer Tasten drückt):")
		for _, m := range p.Menu {
			fmt.Fprintf(&b, "\n  Taste %s: %s", m.Digit, m.Label)
		}
	}
	return b.String()
}

func prefixed(prefix, s, suffix string) string {
	if s == "" {
		return ""
	}
	return prefix + s + suffix
}
