package remote

import (
	"os"
	"testing"
)

type smbEntry struct{ name string }

func (e smbEntry) FileName() string  { return e.name }
func (e smbEntry) Name() string      { return "shadowed" }
func (e smbEntry) IsDirectory() bool { return true }

type longEntry struct{}

func (longEntry) GetLongName() string { return "LONGNAME.VBS" }

type attrs uint32

func (a attrs) FileAttributes() uint32 { return uint32(a) }

type sysEntry struct {
	name string
	sys  any
}

func (e sysEntry) LongName() string { return e.name }
func (e sysEntry) Sys() any         { return e.sys }

func TestEntryOfPassThrough(t *testing.T) {
	in := DirEntry{Name: "scripts", IsDir: true}
	if got := EntryOf(in); got != in {
		t.Fatalf("expected pass-through, got %+v", got)
	}
	if got := EntryOf(&in); got != in {
		t.Fatalf("expected pointer pass-through, got %+v", got)
	}
}

func TestEntryOfNamePriority(t *testing.T) {
	got := EntryOf(smbEntry{name: "logon.bat"})
	if got.Name != "logon.bat" || !got.IsDir {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got := EntryOf(longEntry{}); got.Name != "LONGNAME.VBS" || got.IsDir {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestEntryOfNestedAttributes(t *testing.T) {
	if got := EntryOf(sysEntry{name: "Policies", sys: attrs(0x10)}); !got.IsDir {
		t.Fatalf("expected directory from attribute bit: %+v", got)
	}
	if got := EntryOf(sysEntry{name: "a.ini", sys: attrs(0x20)}); got.IsDir {
		t.Fatalf("expected file from archive bit: %+v", got)
	}
	if got := EntryOf(sysEntry{name: "x", sys: nil}); got.IsDir {
		t.Fatalf("expected unknown attributes to mean file: %+v", got)
	}
}

func TestEntryOfFileInfo(t *testing.T) {
	dir := t.TempDir()
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if got := EntryOf(info); !got.IsDir || got.Name == "" {
		t.Fatalf("unexpected entry for FileInfo: %+v", got)
	}
}

func TestEntryOfUnknown(t *testing.T) {
	if got := EntryOf(42); got.Name != "" || got.IsDir {
		t.Fatalf("expected empty file entry, got %+v", got)
	}
}
