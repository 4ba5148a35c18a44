package model

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// EventRecord is one decoded FSEvents notification. It is a value; nothing
// holds on to it after the dispatch that built it returns.
type EventRecord struct {
	// ID is monotonic per device, not across devices.
	ID         uint64
	Path       string
	Actions    Actions
	ItemType   ItemType
	Control    Control
	Flags      FlagSet
	FileID     *uint64
	DocumentID *int64
	CapturedAt time.Time
}

// Build decodes rawFlags and normalizes rawPath. Directories always end
// with a separator since the OS does not guarantee one.
func Build(id uint64, rawPath string, rawFlags FlagSet, fileID *uint64, documentID *int64) EventRecord {
	actions, itemType, control := Decode(rawFlags)
	return EventRecord{
		ID:         id,
		Path:       normalizePath(rawPath, itemType),
		Actions:    actions,
		ItemType:   itemType,
		Control:    control,
		Flags:      rawFlags,
		FileID:     fileID,
		DocumentID: documentID,
		CapturedAt: time.Now(),
	}
}

func normalizePath(p string, t ItemType) string {
	if p == "" {
		return p
	}
	p = filepath.Clean(p)
	if t.Has(TypeDir) && !strings.HasSuffix(p, string(filepath.Separator)) {
		p += string(filepath.Separator)
	}
	return p
}

// RealPath makes p absolute and resolves symbolic links in its longest
// existing prefix, so it compares equal to the paths FSEvents reports
// (/tmp/x arrives as /private/tmp/x). Components that do not exist yet are
// kept as given.
func RealPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	rest := ""
	for dir := abs; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

// TrimmedPath is Path without the directory separator Build may have
// appended, suitable for comparing against configured paths.
func (e EventRecord) TrimmedPath() string {
	if len(e.Path) > 1 {
		return strings.TrimSuffix(e.Path, string(filepath.Separator))
	}
	return e.Path
}

func (e EventRecord) Has(a Actions) bool { return e.Actions.Has(a) }

func (e EventRecord) String() string {
	return fmt.Sprintf("#%-10d %-24s %-8s %q", e.ID, e.Actions, e.ItemType, e.Path)
}
