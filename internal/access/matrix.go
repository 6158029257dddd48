package access

import "agentgrid.io/internal/catalog"

// AdminLevel is the authority scope of a caller. Company and network admins
// are peers for assignment and approval purposes; the hierarchy below only
// orders them for escalation targeting.
type AdminLevel string

const (
	LevelSuperAdmin   AdminLevel = "super_admin"
	LevelNetworkAdmin AdminLevel = "network_admin"
	LevelCompanyAdmin AdminLevel = "company_admin"
	LevelUser         AdminLevel = "user"
)

// Valid reports whether the level is a known value, including the non-admin
// user level.
func (l AdminLevel) Valid() bool {
	switch l {
	case LevelSuperAdmin, LevelNetworkAdmin, LevelCompanyAdmin, LevelUser:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the level carries any admin authority.
func (l AdminLevel) IsAdmin() bool {
	switch l {
	case LevelSuperAdmin, LevelNetworkAdmin, LevelCompanyAdmin:
		return true
	default:
		return false
	}
}

// AssignmentType records how an agent reaches a user's library.
type AssignmentType string

const (
	AssignFree            AssignmentType = "free"
	AssignDirect          AssignmentType = "direct"
	AssignApproval        AssignmentType = "approval"
	AssignApprovedRequest AssignmentType = "approved_request"
)

// Permissions is the fully-populated decision for one (tier, level) pair.
// Every field is always set; invalid inputs resolve to the restrictive
// sentinel set rather than a partially-populated value.
type Permissions struct {
	CanAssign        bool           `json:"can_assign"`
	CanApprove       bool           `json:"can_approve"`
	CanRequest       bool           `json:"can_request"`
	RequiresApproval bool           `json:"requires_approval"`
	ApprovalLevel    AdminLevel     `json:"approval_level"`
	Type             AssignmentType `json:"assignment_type"`
}

// restrictive is the sentinel returned for unknown tiers or levels: nothing
// can be assigned or approved, and any access must go through approval at the
// top of the hierarchy.
func restrictive() Permissions {
	return Permissions{
		CanRequest:       true,
		RequiresApproval: true,
		ApprovalLevel:    LevelSuperAdmin,
		Type:             AssignApproval,
	}
}

// PermissionsFor resolves the tier x level permission matrix. It never
// panics: unrecognized inputs yield the restrictive sentinel set.
//
// Free agents are self-service at every level. Premium agents are
// direct-assignable by any admin (company and network admins are peers).
// Enterprise agents are assignable only by super admins; everyone else must
// request super-admin approval.
func PermissionsFor(tier catalog.Tier, level AdminLevel) Permissions {
	if !tier.Valid() || !level.Valid() {
		return restrictive()
	}
	switch tier {
	case catalog.TierFree:
		p := Permissions{
			CanAssign:     true,
			CanRequest:    true,
			ApprovalLevel: LevelCompanyAdmin,
			Type:          AssignFree,
		}
		if level.IsAdmin() {
			p.CanApprove = true
			p.ApprovalLevel = level
		}
		return p
	case catalog.TierPremium:
		if level.IsAdmin() {
			return Permissions{
				CanAssign:     true,
				CanApprove:    true,
				CanRequest:    true,
				ApprovalLevel: level,
				Type:          AssignDirect,
			}
		}
		return Permissions{
			CanRequest:       true,
			RequiresApproval: true,
			ApprovalLevel:    LevelCompanyAdmin,
			Type:             AssignApproval,
		}
	case catalog.TierEnterprise:
		if level == LevelSuperAdmin {
			return Permissions{
				CanAssign:     true,
				CanApprove:    true,
				CanRequest:    true,
				ApprovalLevel: LevelSuperAdmin,
				Type:          AssignDirect,
			}
		}
		return Permissions{
			CanRequest:       true,
			RequiresApproval: true,
			ApprovalLevel:    LevelSuperAdmin,
			Type:             AssignApproval,
		}
	}
	return restrictive()
}

// CanAssign reports whether level may assign an agent of this tier directly.
func CanAssign(tier catalog.Tier, level AdminLevel) bool {
	return PermissionsFor(tier, level).CanAssign
}

// CanApprove reports whether level may approve requests for this tier.
func CanApprove(tier catalog.Tier, level AdminLevel) bool {
	return PermissionsFor(tier, level).CanApprove
}

// CanRequest reports whether level may request an agent of this tier.
func CanRequest(tier catalog.Tier, level AdminLevel) bool {
	return PermissionsFor(tier, level).CanRequest
}

// RequiresApproval reports whether an add action for this tier must go
// through the request workflow at this level.
func RequiresApproval(tier catalog.Tier, level AdminLevel) bool {
	return PermissionsFor(tier, level).RequiresApproval
}

// ApprovalLevelFor returns the level whose queue handles approvals for this
// (tier, level) pair.
func ApprovalLevelFor(tier catalog.Tier, level AdminLevel) AdminLevel {
	return PermissionsFor(tier, level).ApprovalLevel
}

// AssignmentTypeFor returns the assignment type recorded when level adds an
// agent of this tier.
func AssignmentTypeFor(tier catalog.Tier, level AdminLevel) AssignmentType {
	return PermissionsFor(tier, level).Type
}

// RequiredApprovalLevel returns the minimum admin level that can act on this
// tier without escalation: company admins handle free and premium agents,
// only super admins handle enterprise ones. Unknown tiers resolve to
// super_admin.
func RequiredApprovalLevel(tier catalog.Tier) AdminLevel {
	switch tier {
	case catalog.TierFree, catalog.TierPremium:
		return LevelCompanyAdmin
	default:
		return LevelSuperAdmin
	}
}

var levelRank = map[AdminLevel]int{
	LevelSuperAdmin:   0,
	LevelNetworkAdmin: 1,
	LevelCompanyAdmin: 2,
	LevelUser:         3,
}

// LevelHierarchy returns admin levels ordered by descending authority.
func LevelHierarchy() []AdminLevel {
	return []AdminLevel{LevelSuperAdmin, LevelNetworkAdmin, LevelCompanyAdmin}
}

// IsHigherLevel reports whether a sits strictly above b in the hierarchy.
// Equal or unknown levels compare false.
func IsHigherLevel(a, b AdminLevel) bool {
	ra, okA := levelRank[a]
	rb, okB := levelRank[b]
	if !okA || !okB {
		return false
	}
	return ra < rb
}
