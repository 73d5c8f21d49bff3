// Package packs ships the built-in language packs and loads custom ones from
// disk. A pack is the forward map a lang.Tree is built from.
package packs

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/david-fong/capswalk-sub001/internal/lang"
)

// DefaultName is the pack used when none is configured.
const DefaultName = "en-lowercase"

var (
	// ErrUnknownPack is returned for names with no registered pack.
	ErrUnknownPack = errors.New("packs: unknown language pack")
	// ErrBuiltinName is returned when a custom pack reuses a built-in name.
	ErrBuiltinName = errors.New("packs: name is taken by a built-in pack")
)

//go:embed data/*.json
var builtinFS embed.FS

// EntryDocument is one character as it appears in a pack file. It is shared
// with the schema generator in cmd/langschema.
type EntryDocument struct {
	Char   string  `json:"char" jsonschema:"title=Character,description=Glyph shown on the tile.,minLength=1,required"`
	Seq    string  `json:"seq" jsonschema:"title=Sequence,description=Keys typed to select the character.,minLength=1,required"`
	Weight float64 `json:"weight" jsonschema:"title=Weight,description=Relative selection frequency. Must be positive.,required"`
}

// Document is the on-disk form of a language pack.
type Document struct {
	Name        string          `json:"name" jsonschema:"title=Pack Name,pattern=^[a-z0-9-]+$,minLength=1,required"`
	Description string          `json:"description,omitempty" jsonschema:"title=Description"`
	Entries     []EntryDocument `json:"entries" jsonschema:"title=Entries,minItems=1,required"`
}

// Pack is a validated language pack.
type Pack struct {
	Name        string
	Description string
	Forward     map[string]lang.Entry
}

// Summary is the public description of a pack.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Characters  int    `json:"characters"`
}

var (
	loadOnce sync.Once
	loadErr  error

	mu      sync.RWMutex
	loaded  map[string]Pack
	builtin map[string]bool
)

func loadBuiltin() {
	loaded = make(map[string]Pack)
	builtin = make(map[string]bool)
	entries, err := builtinFS.ReadDir("data")
	if err != nil {
		loadErr = fmt.Errorf("packs: read builtin: %w", err)
		return
	}
	for _, entry := range entries {
		data, err := builtinFS.ReadFile(path.Join("data", entry.Name()))
		if err != nil {
			loadErr = fmt.Errorf("packs: read %s: %w", entry.Name(), err)
			return
		}
		pack, err := Parse(data)
		if err != nil {
			loadErr = fmt.Errorf("packs: %s: %w", entry.Name(), err)
			return
		}
		loaded[pack.Name] = pack
		builtin[pack.Name] = true
	}
}

// Load returns the registered pack with the given name.
func Load(name string) (Pack, error) {
	loadOnce.Do(loadBuiltin)
	if loadErr != nil {
		return Pack{}, loadErr
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	mu.RLock()
	pack, ok := loaded[name]
	mu.RUnlock()
	if !ok {
		return Pack{}, fmt.Errorf("%w: %q", ErrUnknownPack, name)
	}
	return pack.clone(), nil
}

// Register makes a custom pack available to Load under its own name. A later
// registration with the same name replaces the earlier one.
func Register(pack Pack) error {
	loadOnce.Do(loadBuiltin)
	if loadErr != nil {
		return loadErr
	}
	mu.Lock()
	defer mu.Unlock()
	if builtin[pack.Name] {
		return fmt.Errorf("%w: %q", ErrBuiltinName, pack.Name)
	}
	loaded[pack.Name] = pack.clone()
	return nil
}

// LoadFile reads and validates a pack from disk.
func LoadFile(filePath string) (Pack, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Pack{}, fmt.Errorf("packs: read %s: %w", filePath, err)
	}
	return Parse(data)
}

// Parse validates a pack document.
func Parse(data []byte) (Pack, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Pack{}, fmt.Errorf("decode pack: %w", err)
	}
	if strings.TrimSpace(doc.Name) == "" {
		return Pack{}, errors.New("pack name is required")
	}
	if len(doc.Entries) == 0 {
		return Pack{}, fmt.Errorf("pack %q has no entries", doc.Name)
	}
	forward := make(map[string]lang.Entry, len(doc.Entries))
	for _, entry := range doc.Entries {
		if _, dup := forward[entry.Char]; dup {
			return Pack{}, fmt.Errorf("pack %q lists %q twice", doc.Name, entry.Char)
		}
		if entry.Char == "" || entry.Seq == "" || !(entry.Weight > 0) {
			return Pack{}, fmt.Errorf("pack %q: %w: char=%q seq=%q weight=%v", doc.Name, lang.ErrInvalidEntry, entry.Char, entry.Seq, entry.Weight)
		}
		forward[entry.Char] = lang.Entry{Seq: entry.Seq, Weight: entry.Weight}
	}
	return Pack{Name: doc.Name, Description: doc.Description, Forward: forward}, nil
}

// Names lists the registered packs in sorted order.
func Names() []string {
	loadOnce.Do(loadBuiltin)
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summaries describes every registered pack.
func Summaries() []Summary {
	names := Names()
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Summary, 0, len(names))
	for _, name := range names {
		pack := loaded[name]
		out = append(out, Summary{Name: pack.Name, Description: pack.Description, Characters: len(pack.Forward)})
	}
	return out
}

// Build constructs a tree from the pack, validated against threshold.
func (p Pack) Build(threshold int) (*lang.Tree, error) {
	tree, err := lang.NewTree(p.Forward, threshold)
	if err != nil {
		return nil, fmt.Errorf("pack %q: %w", p.Name, err)
	}
	return tree, nil
}

func (p Pack) clone() Pack {
	forward := make(map[string]lang.Entry, len(p.Forward))
	for k, v := range p.Forward {
		forward[k] = v
	}
	p.Forward = forward
	return p
}
