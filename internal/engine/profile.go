package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/sccd/internal/action"
	"github.com/standardbeagle/sccd/internal/source"
)

// ProfileExtension is the file extension of profile files.
const ProfileExtension = ".sccprofile"

// profileFile is the on-disk shape of a profile.
type profileFile struct {
	Version  float64                   `json:"version,omitempty"`
	Buttons  map[string]string         `json:"buttons,omitempty"`
	Triggers map[string]string         `json:"triggers,omitempty"`
	Pads     map[string]string         `json:"pads,omitempty"`
	Stick    string                    `json:"stick,omitempty"`
	Menus    map[string][]menuItemFile `json:"menus,omitempty"`
}

// Profile assigns an action chain to every source.
type Profile struct {
	filename string
	slots    map[source.Source]*action.Node
	menus    map[string]*Menu
}

// NewProfile creates an empty profile with every source unmapped.
func NewProfile() *Profile {
	p := &Profile{
		slots: make(map[source.Source]*action.Node),
		menus: make(map[string]*Menu),
	}
	for _, s := range source.All() {
		p.slots[s] = action.Base(NoAction)
	}
	return p
}

// LoadProfile reads a profile file.
func LoadProfile(path string, parser Parser) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var pf profileFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}

	p := NewProfile()
	p.filename = path

	groups := []struct {
		name    string
		entries map[string]string
		kind    source.Kind
	}{
		{"buttons", pf.Buttons, source.KindButton},
		{"triggers", pf.Triggers, source.KindTrigger},
		{"pads", pf.Pads, source.KindPad},
	}
	for _, g := range groups {
		for key, desc := range g.entries {
			src, err := source.Parse(key)
			if err != nil {
				return nil, fmt.Errorf("profile %s: %s: %w", path, g.name, err)
			}
			if src.Kind() != g.kind {
				return nil, fmt.Errorf("profile %s: %s is not one of %s", path, src, g.name)
			}
			if err := p.bind(parser, src, desc); err != nil {
				return nil, fmt.Errorf("profile %s: %w", path, err)
			}
		}
	}
	if pf.Stick != "" {
		if err := p.bind(parser, source.Stick, pf.Stick); err != nil {
			return nil, fmt.Errorf("profile %s: %w", path, err)
		}
	}
	for id, items := range pf.Menus {
		m, err := buildMenu(id, items, parser)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", path, err)
		}
		p.menus[id] = m
	}
	return p, nil
}

func (p *Profile) bind(parser Parser, src source.Source, desc string) error {
	a, err := parser.Parse(desc)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	p.slots[src] = action.Base(a)
	return nil
}

// Save writes the profile without any lock or observe wrappers.
func (p *Profile) Save(path string) error {
	pf := profileFile{
		Version:  1.1,
		Buttons:  map[string]string{},
		Triggers: map[string]string{},
		Pads:     map[string]string{},
		Menus:    map[string][]menuItemFile{},
	}
	for src, n := range p.slots {
		a := action.Unwrap(n)
		if a == nil || a.Describe() == NoAction.Desc {
			continue
		}
		switch src.Kind() {
		case source.KindButton:
			pf.Buttons[src.String()] = a.Describe()
		case source.KindTrigger:
			pf.Triggers[src.String()] = a.Describe()
		case source.KindPad:
			pf.Pads[src.String()] = a.Describe()
		case source.KindStick:
			pf.Stick = a.Describe()
		}
	}
	for id, m := range p.menus {
		pf.Menus[id] = m.file()
	}

	data, err := json.MarshalIndent(pf, "", "\t")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	p.filename = path
	return nil
}

// Filename returns the path the profile was loaded from or saved to.
func (p *Profile) Filename() string {
	return p.filename
}

// Name returns the file name without directory or extension.
func (p *Profile) Name() string {
	if p.filename == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(p.filename), ProfileExtension)
}

// Slot returns the action chain bound to src.
func (p *Profile) Slot(src source.Source) *action.Node {
	return p.slots[src]
}

// SetSlot replaces the action chain bound to src.
func (p *Profile) SetSlot(src source.Source, n *action.Node) {
	p.slots[src] = n
}

// Menu returns a menu defined inside the profile.
func (p *Profile) Menu(id string) (*Menu, bool) {
	m, ok := p.menus[id]
	return m, ok
}

// MenuIDs lists the profile's menus in sorted order.
func (p *Profile) MenuIDs() []string {
	ids := make([]string, 0, len(p.menus))
	for id := range p.menus {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FindProfile resolves a profile name against the given directories.
// Names containing a path separator are rejected.
func FindProfile(name string, dirs ...string) (string, bool) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) {
		return "", false
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, name+ProfileExtension)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}
