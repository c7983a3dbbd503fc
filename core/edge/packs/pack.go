// Package packs resolves files from published packs held by the external
// pack store.
package packs

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Pack is a read-only snapshot of a published pack.
type Pack struct {
	ID          string  `json:"id"`
	URLID       string  `json:"urlId,omitempty"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Author      string  `json:"author,omitempty"`
	Version     string  `json:"version,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
	Files       FileSet `json:"files"`
}

// Public reports whether the store marked the pack public. A missing flag
// counts as public; the store enforces its own access policy.
func (p *Pack) Public() bool {
	return p != nil && (p.IsPublic == nil || *p.IsPublic)
}

// FileSet maps relative paths to text content and remembers the order the
// store sent them in.
type FileSet struct {
	order   []string
	content map[string]string
}

// NewFileSet builds a FileSet from alternating path, content pairs.
func NewFileSet(pairs ...string) FileSet {
	var fs FileSet
	for i := 0; i+1 < len(pairs); i += 2 {
		fs.add(pairs[i], pairs[i+1])
	}
	return fs
}

// Get returns the content stored at path.
func (f FileSet) Get(path string) (string, bool) {
	content, ok := f.content[path]
	return content, ok
}

// Len is the number of text files.
func (f FileSet) Len() int { return len(f.order) }

// Paths returns file paths in store order.
func (f FileSet) Paths() []string {
	return append([]string(nil), f.order...)
}

// First returns the first file in store order.
func (f FileSet) First() (string, string, bool) {
	if len(f.order) == 0 {
		return "", "", false
	}
	path := f.order[0]
	return path, f.content[path], true
}

func (f *FileSet) add(path, content string) {
	if f.content == nil {
		f.content = make(map[string]string)
	}
	if _, exists := f.content[path]; !exists {
		f.order = append(f.order, path)
	}
	f.content[path] = content
}

// UnmarshalJSON reads a JSON object keeping key order. Entries whose value is
// not a string (binary descriptors) are skipped.
func (f *FileSet) UnmarshalJSON(data []byte) error {
	*f = FileSet{}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("files: %w", err)
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("files: expected object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("files: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("files: expected string key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("files[%s]: %w", key, err)
		}
		var content string
		if err := json.Unmarshal(raw, &content); err != nil {
			continue
		}
		f.add(key, content)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("files: %w", err)
	}
	return nil
}

// MarshalJSON writes the files back in store order.
func (f FileSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, path := range f.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(path)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.content[path])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
