package model

import (
	"fmt"
	"math/bits"
	"strings"
)

var flagNames = map[FlagSet]string{
	MustScanSubDirs:    "mustScanSubDirs",
	UserDropped:        "userDropped",
	KernelDropped:      "kernelDropped",
	EventIDsWrapped:    "eventIDsWrapped",
	HistoryDone:        "historyDone",
	RootChanged:        "rootChanged",
	Mount:              "mount",
	Unmount:            "unmount",
	ItemCreated:        "created",
	ItemRemoved:        "removed",
	ItemInodeMetaMod:   "inodeMetaModified",
	ItemRenamed:        "renamed",
	ItemModified:       "modified",
	ItemFinderInfoMod:  "finderInfoModified",
	ItemChangeOwner:    "ownerChanged",
	ItemXattrMod:       "xattrModified",
	ItemIsFile:         "file",
	ItemIsDir:          "dir",
	ItemIsSymlink:      "symlink",
	OwnEvent:           "ownEvent",
	ItemIsHardlink:     "hardlink",
	ItemIsLastHardlink: "lastHardlink",
	ItemCloned:         "cloned",
}

// labels walks the set bits from low to high.
func labels(v uint32) []string {
	out := make([]string, 0, bits.OnesCount32(v))
	for v != 0 {
		bit := FlagSet(1) << bits.TrailingZeros32(v)
		v &^= uint32(bit)
		if name, ok := flagNames[bit]; ok {
			out = append(out, name)
		} else {
			out = append(out, fmt.Sprintf("unknown(%#x)", uint32(bit)))
		}
	}
	return out
}

func join(l []string, empty string) string {
	if len(l) == 0 {
		return empty
	}
	return strings.Join(l, "|")
}

func (f FlagSet) Labels() []string  { return labels(uint32(f)) }
func (a Actions) Labels() []string  { return labels(uint32(a & AllActions)) }
func (t ItemType) Labels() []string { return labels(uint32(t & AllItemTypes)) }
func (c Control) Labels() []string  { return labels(uint32(c & AllControl)) }

func (f FlagSet) String() string  { return join(f.Labels(), "[no flags]") }
func (a Actions) String() string  { return join(a.Labels(), "[no actions]") }
func (t ItemType) String() string { return join(t.Labels(), "[no type]") }
func (c Control) String() string  { return join(c.Labels(), "[no control]") }

// ParseActions turns action labels (as printed by Actions.String) into a
// mask. "all" selects every action.
func ParseActions(names []string) (Actions, error) {
	var a Actions
	for _, n := range names {
		n = strings.TrimSpace(n)
		if strings.EqualFold(n, "all") {
			a |= AllActions
			continue
		}
		found := false
		for bit, name := range flagNames {
			if strings.EqualFold(name, n) && Actions(bit)&AllActions != 0 {
				a |= Actions(bit)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown action %q", n)
		}
	}
	return a, nil
}
