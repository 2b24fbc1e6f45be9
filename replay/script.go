// Package replay drives a chef session from a recorded exploration script.
//
// A script lists every low-level path of a run along with the interpreter
// updates it reports, the paths it forks and how it ends. The replay engine
// feeds those events to a session exactly as a live symbolic engine would.
package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/chef"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Script is a recorded exploration. The first path is the root.
type Script struct {
	Name string `yaml:"name,omitempty" msgpack:"name"`

	// Virtual time elapsed after each event.
	Step time.Duration `yaml:"step,omitempty" msgpack:"step"`

	// Session time limit. Zero disables it.
	MaxTime time.Duration `yaml:"max_time,omitempty" msgpack:"max_time"`

	Paths []Path `yaml:"paths" msgpack:"paths"`
}

// Path is one low-level path.
type Path struct {
	ID chef.PathID `yaml:"id" msgpack:"id"`

	// Low-level program counter at the first event. Advanced by one per event.
	PC uint64 `yaml:"pc,omitempty" msgpack:"pc"`

	// Concrete inputs returned when the path is solved.
	Inputs     []chef.Binding `yaml:"inputs,omitempty" msgpack:"inputs"`
	Unsolvable bool           `yaml:"unsolvable,omitempty" msgpack:"unsolvable"`

	Events []Event `yaml:"events" msgpack:"events"`
}

// Event is a single step of a path. Exactly one field must be set.
type Event struct {
	Update *Update       `yaml:"update,omitempty" msgpack:"update,omitempty"`
	Fork   []chef.PathID `yaml:"fork,omitempty" msgpack:"fork,omitempty"`
	Wait   time.Duration `yaml:"wait,omitempty" msgpack:"wait,omitempty"`
	End    *End          `yaml:"end,omitempty" msgpack:"end,omitempty"`
}

// Update is a high-level program counter report from the guest interpreter.
type Update struct {
	PC       chef.HighLevelPC `yaml:"pc" msgpack:"pc"`
	Opcode   chef.Opcode      `yaml:"opcode" msgpack:"opcode"`
	File     string           `yaml:"file,omitempty" msgpack:"file"`
	Function string           `yaml:"function,omitempty" msgpack:"function"`
	Line     int              `yaml:"line,omitempty" msgpack:"line"`
}

// End terminates the path.
type End struct {
	Error bool `yaml:"error,omitempty" msgpack:"error"`
}

// Kind returns the name of the event's action.
func (e *Event) Kind() string {
	switch {
	case e.Update != nil:
		return "update"
	case e.Fork != nil:
		return "fork"
	case e.End != nil:
		return "end"
	case e.Wait != 0:
		return "wait"
	default:
		return ""
	}
}

func (e *Event) fields() (n int) {
	if e.Update != nil {
		n++
	}
	if e.Fork != nil {
		n++
	}
	if e.End != nil {
		n++
	}
	if e.Wait != 0 {
		n++
	}
	return n
}

// Root returns the first path of the script.
func (s *Script) Root() *Path {
	if len(s.Paths) == 0 {
		return nil
	}
	return &s.Paths[0]
}

// Path returns the path with the given ID, if any.
func (s *Script) Path(id chef.PathID) *Path {
	for i := range s.Paths {
		if s.Paths[i].ID == id {
			return &s.Paths[i]
		}
	}
	return nil
}

// Validate returns an error if the script is malformed. Every forked path
// must be declared and spawned exactly once, and the root is never spawned.
func (s *Script) Validate() error {
	if len(s.Paths) == 0 {
		return errors.New("script has no paths")
	} else if s.Step < 0 {
		return errors.New("step must be non-negative")
	} else if s.MaxTime < 0 {
		return errors.New("max_time must be non-negative")
	}

	declared := make(map[chef.PathID]bool, len(s.Paths))
	for _, p := range s.Paths {
		if declared[p.ID] {
			return fmt.Errorf("duplicate path id: %d", p.ID)
		}
		declared[p.ID] = true
	}

	spawned := make(map[chef.PathID]bool)
	for _, p := range s.Paths {
		for i, e := range p.Events {
			if n := e.fields(); n != 1 {
				return fmt.Errorf("path %d event %d: expected one action, got %d", p.ID, i, n)
			} else if e.Wait < 0 {
				return fmt.Errorf("path %d event %d: negative wait", p.ID, i)
			} else if e.Update != nil && len(e.Update.PC) == 0 {
				return fmt.Errorf("path %d event %d: empty pc", p.ID, i)
			} else if e.End != nil && i != len(p.Events)-1 {
				return fmt.Errorf("path %d event %d: end must be the last event", p.ID, i)
			}

			for _, id := range e.Fork {
				if !declared[id] {
					return fmt.Errorf("path %d event %d: fork of undeclared path %d", p.ID, i, id)
				} else if id == p.ID || id == s.Paths[0].ID {
					return fmt.Errorf("path %d event %d: invalid fork of path %d", p.ID, i, id)
				} else if spawned[id] {
					return fmt.Errorf("path %d event %d: path %d forked twice", p.ID, i, id)
				}
				spawned[id] = true
			}
		}
	}

	for _, p := range s.Paths[1:] {
		if !spawned[p.ID] {
			return fmt.Errorf("path %d is never forked", p.ID)
		}
	}
	return nil
}

// Format is a script encoding.
type Format string

const (
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

// FormatFromPath returns the encoding implied by the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".msgpack", ".mp":
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unknown script extension: %q", filepath.Ext(path))
	}
}

// ReadScript decodes and validates a script.
func ReadScript(r io.Reader, format Format) (*Script, error) {
	var s Script
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("decode yaml script: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("decode msgpack script: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown script format: %q", format)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return &s, nil
}

// ParseScript decodes a YAML script from a string.
func ParseScript(s string) (*Script, error) {
	return ReadScript(strings.NewReader(s), FormatYAML)
}

// ReadScriptFile reads a script, choosing the format from the extension.
func ReadScriptFile(path string) (*Script, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ReadScript(bytes.NewReader(buf), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// WriteScript encodes s to w.
func WriteScript(w io.Writer, s *Script, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(s)
	default:
		return fmt.Errorf("unknown script format: %q", format)
	}
}

// WriteScriptFile writes s to path, choosing the format from the extension.
func WriteScriptFile(path string, s *Script) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := WriteScript(&buf, s, format); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
