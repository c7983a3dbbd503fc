package packs

import (
	"encoding/json"
	"testing"
)

func TestFileSetKeepsStoreOrder(t *testing.T) {
	var fs FileSet
	data := `{"z.js":"Z","a.js":"A","bin.wasm":{"base64":"AAA="},"m.js":"M"}`
	if err := json.Unmarshal([]byte(data), &fs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	paths := fs.Paths()
	if len(paths) != 3 || paths[0] != "z.js" || paths[1] != "a.js" || paths[2] != "m.js" {
		t.Fatalf("unexpected order: %v", paths)
	}
	path, content, ok := fs.First()
	if !ok || path != "z.js" || content != "Z" {
		t.Fatalf("unexpected first: %s %s %v", path, content, ok)
	}
	out, err := json.Marshal(fs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"z.js":"Z","a.js":"A","m.js":"M"}` {
		t.Fatalf("unexpected marshal: %s", out)
	}
}

func TestFileSetNullAndInvalid(t *testing.T) {
	var fs FileSet
	if err := json.Unmarshal([]byte(`null`), &fs); err != nil || fs.Len() != 0 {
		t.Fatalf("expected empty set for null: %v", err)
	}
	if err := json.Unmarshal([]byte(`["a"]`), &fs); err == nil {
		t.Fatalf("expected error for array")
	}
	if _, _, ok := fs.First(); ok {
		t.Fatalf("expected no first entry")
	}
}

func TestPackPublic(t *testing.T) {
	f, tr := false, true
	if (&Pack{IsPublic: &f}).Public() {
		t.Fatalf("explicit false must not be public")
	}
	if !(&Pack{IsPublic: &tr}).Public() || !(&Pack{}).Public() {
		t.Fatalf("true or missing flag should be public")
	}
	var nilPack *Pack
	if nilPack.Public() {
		t.Fatalf("nil pack is not public")
	}
}
