package remote

const fileAttributeDirectory = 0x10

type (
	fileNamer      interface{ FileName() string }
	longNamer      interface{ LongName() string }
	namer          interface{ Name() string }
	longNameGetter interface{ GetLongName() string }

	directoryFlag interface{ IsDirectory() bool }
	dirFlag       interface{ IsDir() bool }
	sysCarrier    interface{ Sys() any }
	attrCarrier   interface{ FileAttributes() uint32 }
)

// EntryOf normalizes an arbitrary listing value into a DirEntry. Session
// implementations that already produce DirEntry values pass through
// unchanged. Unknown shapes degrade to an unnamed file.
func EntryOf(v any) DirEntry {
	switch e := v.(type) {
	case DirEntry:
		return e
	case *DirEntry:
		if e == nil {
			return DirEntry{}
		}
		return *e
	}
	return DirEntry{Name: entryName(v), IsDir: entryIsDir(v)}
}

func entryName(v any) string {
	if e, ok := v.(fileNamer); ok {
		return e.FileName()
	}
	if e, ok := v.(longNamer); ok {
		return e.LongName()
	}
	if e, ok := v.(namer); ok {
		return e.Name()
	}
	if e, ok := v.(longNameGetter); ok {
		return e.GetLongName()
	}
	return ""
}

func entryIsDir(v any) bool {
	if e, ok := v.(directoryFlag); ok {
		return e.IsDirectory()
	}
	if e, ok := v.(dirFlag); ok {
		return e.IsDir()
	}
	if e, ok := v.(sysCarrier); ok {
		switch attrs := e.Sys().(type) {
		case directoryFlag:
			return attrs.IsDirectory()
		case attrCarrier:
			return attrs.FileAttributes()&fileAttributeDirectory != 0
		}
	}
	return false
}
