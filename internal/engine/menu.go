package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/standardbeagle/sccd/internal/action"
)

// MenuExtension is the file extension of standalone menu files.
const MenuExtension = ".menu"

// ErrMenuItemNotFound is returned when a menu has no item with a given id.
var ErrMenuItemNotFound = errors.New("menu item not found")

const menuSchemaURL = "menu.schema.json"

const menuSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "id":        {"type": "string", "minLength": 1},
      "name":      {"type": "string"},
      "action":    {"type": "string"},
      "separator": {"type": "boolean"},
      "submenu":   {"type": "string"}
    },
    "additionalProperties": true
  }
}`

var (
	menuSchemaOnce     sync.Once
	menuSchemaCompiled *jsonschema.Schema
	menuSchemaErr      error
)

func compiledMenuSchema() (*jsonschema.Schema, error) {
	menuSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(menuSchemaURL, strings.NewReader(menuSchema)); err != nil {
			menuSchemaErr = err
			return
		}
		menuSchemaCompiled, menuSchemaErr = compiler.Compile(menuSchemaURL)
	})
	return menuSchemaCompiled, menuSchemaErr
}

type menuItemFile struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Action    string `json:"action,omitempty"`
	Separator bool   `json:"separator,omitempty"`
	Submenu   string `json:"submenu,omitempty"`
}

// MenuItem is one selectable entry.
type MenuItem struct {
	ID     string
	Label  string
	Action action.Action
}

// Menu is an ordered list of items shown by the OSD companion.
type Menu struct {
	ID    string
	items []menuItemFile
	byID  map[string]*MenuItem
}

// ItemByID returns the item with the given id.
func (m *Menu) ItemByID(id string) (*MenuItem, error) {
	item, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s in menu %s", ErrMenuItemNotFound, id, m.ID)
	}
	return item, nil
}

// Len returns the number of selectable items.
func (m *Menu) Len() int {
	return len(m.byID)
}

func (m *Menu) file() []menuItemFile {
	return m.items
}

func buildMenu(id string, items []menuItemFile, parser Parser) (*Menu, error) {
	m := &Menu{ID: id, items: items, byID: make(map[string]*MenuItem)}
	for _, it := range items {
		if it.Separator || it.ID == "" {
			continue
		}
		a, err := parser.Parse(it.Action)
		if err != nil {
			return nil, fmt.Errorf("menu %s item %s: %w", id, it.ID, err)
		}
		m.byID[it.ID] = &MenuItem{ID: it.ID, Label: it.Name, Action: a}
	}
	return m, nil
}

// LoadMenuFile reads a standalone menu file after validating it.
func LoadMenuFile(path string, parser Parser) (*Menu, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read menu: %w", err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse menu %s: %w", path, err)
	}
	schema, err := compiledMenuSchema()
	if err != nil {
		return nil, fmt.Errorf("compile menu schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid menu %s: %w", path, err)
	}

	var items []menuItemFile
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse menu %s: %w", path, err)
	}
	return buildMenu(strings.TrimSuffix(filepath.Base(path), MenuExtension), items, parser)
}

// FindMenu resolves a menu file id. Absolute and relative paths that exist
// are used as is; otherwise dirs are searched in order, the last match
// winning so user directories can be listed after system defaults.
func FindMenu(id string, dirs ...string) (string, bool) {
	if _, err := os.Stat(id); err == nil {
		return id, true
	}
	found := ""
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, id)
		if _, err := os.Stat(path); err == nil {
			found = path
		}
	}
	return found, found != ""
}
