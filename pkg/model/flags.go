package model

// FlagSet is the raw event flag word delivered by FSEvents. Bits that are
// not in the table below are kept as-is so that newer OS releases do not
// lose information, but they never show up in Actions or ItemType.
type FlagSet uint32

const (
	MustScanSubDirs    FlagSet = 0x00000001
	UserDropped        FlagSet = 0x00000002
	KernelDropped      FlagSet = 0x00000004
	EventIDsWrapped    FlagSet = 0x00000008
	HistoryDone        FlagSet = 0x00000010
	RootChanged        FlagSet = 0x00000020
	Mount              FlagSet = 0x00000040
	Unmount            FlagSet = 0x00000080
	ItemCreated        FlagSet = 0x00000100
	ItemRemoved        FlagSet = 0x00000200
	ItemInodeMetaMod   FlagSet = 0x00000400
	ItemRenamed        FlagSet = 0x00000800
	ItemModified       FlagSet = 0x00001000
	ItemFinderInfoMod  FlagSet = 0x00002000
	ItemChangeOwner    FlagSet = 0x00004000
	ItemXattrMod       FlagSet = 0x00008000
	ItemIsFile         FlagSet = 0x00010000
	ItemIsDir          FlagSet = 0x00020000
	ItemIsSymlink      FlagSet = 0x00040000
	OwnEvent           FlagSet = 0x00080000
	ItemIsHardlink     FlagSet = 0x00100000
	ItemIsLastHardlink FlagSet = 0x00200000
	ItemCloned         FlagSet = 0x00400000
)

// Actions is the semantic part of a FlagSet: what happened to the item.
type Actions uint32

const (
	ActionRootChanged        = Actions(RootChanged)
	ActionMount              = Actions(Mount)
	ActionUnmount            = Actions(Unmount)
	ActionCreated            = Actions(ItemCreated)
	ActionRemoved            = Actions(ItemRemoved)
	ActionInodeMetaModified  = Actions(ItemInodeMetaMod)
	ActionRenamed            = Actions(ItemRenamed)
	ActionModified           = Actions(ItemModified)
	ActionFinderInfoModified = Actions(ItemFinderInfoMod)
	ActionOwnerChanged       = Actions(ItemChangeOwner)
	ActionXattrModified      = Actions(ItemXattrMod)
	ActionCloned             = Actions(ItemCloned)

	AllActions = ActionRootChanged | ActionMount | ActionUnmount | ActionCreated |
		ActionRemoved | ActionInodeMetaModified | ActionRenamed | ActionModified |
		ActionFinderInfoModified | ActionOwnerChanged | ActionXattrModified | ActionCloned
)

// ItemType classifies the item an event refers to.
type ItemType uint32

const (
	TypeFile         = ItemType(ItemIsFile)
	TypeDir          = ItemType(ItemIsDir)
	TypeSymlink      = ItemType(ItemIsSymlink)
	TypeHardlink     = ItemType(ItemIsHardlink)
	TypeLastHardlink = ItemType(ItemIsLastHardlink)

	AllItemTypes = TypeFile | TypeDir | TypeSymlink | TypeHardlink | TypeLastHardlink
)

// Control holds the stream health and meta bits.
type Control uint32

const (
	ControlMustScanSubDirs = Control(MustScanSubDirs)
	ControlUserDropped     = Control(UserDropped)
	ControlKernelDropped   = Control(KernelDropped)
	ControlIDsWrapped      = Control(EventIDsWrapped)
	ControlHistoryDone     = Control(HistoryDone)
	ControlOwnEvent        = Control(OwnEvent)

	AllControl = ControlMustScanSubDirs | ControlUserDropped | ControlKernelDropped |
		ControlIDsWrapped | ControlHistoryDone | ControlOwnEvent

	// ControlNoise are the bits that describe the monitor rather than
	// content; a record carrying only these has nothing to deliver.
	ControlNoise = ControlMustScanSubDirs | ControlUserDropped | ControlKernelDropped |
		ControlIDsWrapped | ControlHistoryDone
)

// KnownFlags is every bit of the FlagSet table.
const KnownFlags = FlagSet(AllActions) | FlagSet(AllItemTypes) | FlagSet(AllControl)

// Decode splits a raw flag word into its three groups. It never fails.
func Decode(raw FlagSet) (Actions, ItemType, Control) {
	return Actions(raw) & AllActions, ItemType(raw) & AllItemTypes, Control(raw) & AllControl
}

func (f FlagSet) Has(h FlagSet) bool { return f&h == h }

// Unknown returns the bits this package has no name for.
func (f FlagSet) Unknown() FlagSet { return f &^ KnownFlags }

func (a Actions) Has(h Actions) bool             { return a&h == h }
func (a Actions) Intersects(o Actions) bool      { return a&o != 0 }
func (a Actions) Union(o Actions) Actions        { return a | o }
func (a Actions) Intersect(o Actions) Actions    { return a & o }
func (a Actions) IsEmpty() bool                  { return a&AllActions == 0 }
func (t ItemType) Has(h ItemType) bool           { return t&h == h }
func (t ItemType) Union(o ItemType) ItemType     { return t | o }
func (t ItemType) Intersect(o ItemType) ItemType { return t & o }
func (t ItemType) IsEmpty() bool                 { return t&AllItemTypes == 0 }
func (c Control) Has(h Control) bool             { return c&h == h }
func (c Control) Intersects(o Control) bool      { return c&o != 0 }
func (c Control) IsEmpty() bool                  { return c&AllControl == 0 }
