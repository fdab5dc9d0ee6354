package models

// AccessMask is the capability set carried by an AccessEntry.
type AccessMask int16

const (
	AccessRead      AccessMask = 1
	AccessWriteOnly AccessMask = 2
	AccessWrite                = AccessWriteOnly | AccessRead
	AccessShareOnly AccessMask = 4
	AccessShare                = AccessShareOnly | AccessRead
	AccessOwner     AccessMask = 15
)

// Has reports whether every bit of flag is set.
func (m AccessMask) Has(flag AccessMask) bool {
	return m&flag == flag
}

// Covers reports whether other is a subset of m.
func (m AccessMask) Covers(other AccessMask) bool {
	return other&m == other
}

// TeamMask is the capability set carried by a Membership.
type TeamMask int32

const (
	TeamRead          TeamMask = 1
	TeamWrite         TeamMask = 2
	TeamShare         TeamMask = 4
	TeamInvite        TeamMask = 8 | TeamShare
	TeamManageBilling TeamMask = 1 << 21
	TeamManageUsers   TeamMask = (1 << 23) - 1
)

func (m TeamMask) Has(flag TeamMask) bool {
	return m&flag == flag
}

// Valid reports whether m only uses bits a user may hold.
func (m TeamMask) Valid() bool {
	return m >= 0 && m&^TeamManageUsers == 0
}

// RootAccess maps membership capabilities onto the implicit grant a member
// holds on the team root folder.
func (m TeamMask) RootAccess() AccessMask {
	if m.Has(TeamManageUsers) {
		return AccessOwner
	}
	var mask AccessMask
	if m.Has(TeamRead) {
		mask |= AccessRead
	}
	if m.Has(TeamWrite) {
		mask |= AccessWriteOnly
	}
	if m.Has(TeamShare) {
		mask |= AccessShareOnly
	}
	return mask
}
