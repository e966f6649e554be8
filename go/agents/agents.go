// Package agents loads agent definitions: Markdown documents whose YAML
// front-matter declares the agent's name, backing model tier, and tool
// grants.
package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/infolead/router/go/tier"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Definition is the parsed front-matter of one agent document.
type Definition struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Model          string   `yaml:"model"`
	Tools          []string `yaml:"tools"`
	PermissionMode string   `yaml:"permissionMode"`

	// Body is the Markdown after the front-matter (the agent prompt).
	Body string `yaml:"-"`
}

// Tier maps the declared model to its tier.
func (d Definition) Tier() (tier.Tier, error) {
	return tier.Parse(d.Model)
}

// writeTools are tool grants that let an agent modify files.
var writeTools = map[string]bool{
	"Edit":      true,
	"Write":     true,
	"MultiEdit": true,
	"Bash":      true,
}

// CanWrite reports whether any granted tool modifies files.
func (d Definition) CanWrite() bool {
	for _, t := range d.Tools {
		if writeTools[strings.TrimSpace(t)] {
			return true
		}
	}
	return false
}

// Validate checks required fields and the permission-mode rule:
// write-capable agents must declare acceptEdits, read-only agents
// must not.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("agent definition has no name")
	}
	if _, err := d.Tier(); err != nil {
		return fmt.Errorf("agent %s: %w", d.Name, err)
	}
	if d.CanWrite() && d.PermissionMode != "acceptEdits" {
		return fmt.Errorf("agent %s grants write tools but does not declare permissionMode acceptEdits", d.Name)
	}
	if !d.CanWrite() && d.PermissionMode == "acceptEdits" {
		return fmt.Errorf("agent %s is read-only but declares permissionMode acceptEdits", d.Name)
	}
	return nil
}

const frontMatterDelim = "---"

// Parse splits |doc| into YAML front-matter and Markdown body.
func Parse(doc []byte) (Definition, error) {
	var text = strings.ReplaceAll(string(doc), "\r\n", "\n")
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return Definition{}, fmt.Errorf("document has no front-matter")
	}
	var rest = text[len(frontMatterDelim)+1:]
	var idx = strings.Index(rest, "\n"+frontMatterDelim)
	if idx < 0 {
		return Definition{}, fmt.Errorf("front-matter is not terminated")
	}
	var def Definition
	if err := yaml.Unmarshal([]byte(rest[:idx]), &def); err != nil {
		return Definition{}, fmt.Errorf("parsing front-matter: %w", err)
	}
	var body = rest[idx+len(frontMatterDelim)+1:]
	def.Body = strings.TrimLeft(body, "\n")
	return def, nil
}

// LoadFile parses and validates one agent document.
func LoadFile(path string) (Definition, error) {
	var doc, err = os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("reading agent definition: %w", err)
	}
	var def Definition
	if def, err = Parse(doc); err != nil {
		return Definition{}, fmt.Errorf("agent document %s: %w", path, err)
	}
	if err = def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDir loads every *.md agent document under |dir|, keyed by agent
// name. Invalid documents are skipped with a warning so one bad agent
// doesn't take down routing.
func LoadDir(dir string) (map[string]Definition, error) {
	var matches, err = filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("listing agent definitions: %w", err)
	}
	var defs = make(map[string]Definition)
	for _, path := range matches {
		var def Definition
		if def, err = LoadFile(path); err != nil {
			log.WithFields(log.Fields{"path": path, "err": err}).
				Warn("skipping invalid agent definition")
			continue
		}
		defs[def.Name] = def
	}
	return defs, nil
}

// ByTier groups loaded agent names by their tier, sorted for stable
// output.
func ByTier(defs map[string]Definition) map[tier.Tier][]string {
	var out = make(map[tier.Tier][]string)
	for name, def := range defs {
		if tr, err := def.Tier(); err == nil {
			out[tr] = append(out[tr], name)
		}
	}
	for tr := range out {
		sort.Strings(out[tr])
	}
	return out
}
