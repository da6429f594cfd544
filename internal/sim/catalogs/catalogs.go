package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"collegead.ai/internal/sim/gravity"
)

const (
	GravityFile    = "trait_gravity.json"
	AnchorsFile    = "archetype_anchors.json"
	ContextsFile   = "context_gravity.json"
	ComponentsFile = "trait_components.json"
	EventsFile     = "reg_catalog.json"
)

// Catalogs is the read-only configuration shared by every coach, batch and
// goroutine once loaded.
type Catalogs struct {
	Gravity    GravityCatalog
	Anchors    AnchorCatalog
	Contexts   ContextCatalog
	Components ComponentCatalog
	Events     EventCatalog
}

type GravityCatalog struct {
	Matrix gravity.Matrix
	Digest string
}

type ContextCatalog struct {
	ByID   map[string]gravity.Context
	Digest string
}

// Load reads every catalog under configDir. A missing or malformed file is a
// load error; the simulation never starts on partial configuration.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadGravity(filepath.Join(configDir, GravityFile), &c.Gravity); err != nil {
		return nil, err
	}
	if err := loadAnchors(filepath.Join(configDir, AnchorsFile), &c.Anchors); err != nil {
		return nil, err
	}
	if err := loadContexts(filepath.Join(configDir, ContextsFile), &c.Contexts); err != nil {
		return nil, err
	}
	if err := loadComponents(filepath.Join(configDir, ComponentsFile), &c.Components); err != nil {
		return nil, err
	}
	if err := loadEvents(filepath.Join(configDir, EventsFile), &c.Events); err != nil {
		return nil, err
	}
	return &c, nil
}

// Digests returns the sha256 of every loaded file keyed by file name.
func (c *Catalogs) Digests() map[string]string {
	return map[string]string{
		GravityFile:    c.Gravity.Digest,
		AnchorsFile:    c.Anchors.Digest,
		ContextsFile:   c.Contexts.Digest,
		ComponentsFile: c.Components.Digest,
		EventsFile:     c.Events.Digest,
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// readValidated reads path, records its digest and checks it against the
// embedded schema of the same name.
func readValidated(path string) (raw []byte, digest string, err error) {
	name := filepath.Base(path)
	raw, err = os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("%s: %w", name, err)
	}
	if err := validate(name, doc); err != nil {
		return nil, "", fmt.Errorf("%s: %w", name, err)
	}
	return raw, sha256Hex(raw), nil
}

// unwrap returns obj[key] when raw is an object holding key, else raw.
func unwrap(raw []byte, key string) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return raw
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return raw
	}
	inner, ok := top[key]
	if !ok {
		return raw
	}
	inner = bytes.TrimSpace(inner)
	if len(inner) == 0 || (inner[0] != '{' && inner[0] != '[') {
		return raw
	}
	return inner
}

func loadGravity(path string, out *GravityCatalog) error {
	raw, digest, err := readValidated(path)
	if err != nil {
		return err
	}
	out.Digest = digest
	m := gravity.Matrix{}
	if err := json.Unmarshal(unwrap(raw, "matrix"), &m); err != nil {
		return fmt.Errorf("%s: %w", GravityFile, err)
	}
	if len(m) == 0 {
		return fmt.Errorf("%s: empty matrix", GravityFile)
	}
	out.Matrix = m
	return nil
}

func loadContexts(path string, out *ContextCatalog) error {
	raw, digest, err := readValidated(path)
	if err != nil {
		return err
	}
	out.Digest = digest
	byID := map[string]gravity.Context{}
	if err := json.Unmarshal(unwrap(raw, "contexts"), &byID); err != nil {
		return fmt.Errorf("%s: %w", ContextsFile, err)
	}
	for id, ctx := range byID {
		for i, o := range ctx.GravityOverrides {
			if o.Source == "" || o.Target == "" {
				return fmt.Errorf("%s: context %s override %d: empty source or target", ContextsFile, id, i)
			}
		}
	}
	out.ByID = byID
	return nil
}
