package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleDoctor      = "doctor"
	RolePharmacist  = "pharmacist"
	RoleFrontDesk   = "front_desk"
	RoleCareManager = "care_manager"
	RoleInsurer     = "insurer"
	RoleAdmin       = "admin"
)

// Capability names a privileged biometric action.
type Capability string

const (
	CapRegister     Capability = "biometric:register"
	CapVerify       Capability = "biometric:verify"
	CapRequestReset Capability = "biometric:request_reset"
	CapResolveReset Capability = "biometric:resolve_reset"
	CapViewAudit    Capability = "biometric:view_audit"
)

// grants maps each capability to the roles holding it. admin holds everything.
var grants = map[Capability][]string{
	CapRegister:     {RoleFrontDesk, RoleDoctor, RoleCareManager},
	CapVerify:       {RoleFrontDesk, RoleDoctor, RolePharmacist, RoleCareManager, RoleInsurer},
	CapRequestReset: {RoleFrontDesk, RoleDoctor, RolePharmacist, RoleCareManager},
	CapResolveReset: {RoleCareManager, RoleInsurer},
	CapViewAudit:    {RoleCareManager, RoleInsurer},
}

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleDoctor, RolePharmacist, RoleFrontDesk, RoleCareManager, RoleInsurer, RoleAdmin:
		return true
	default:
		return false
	}
}

// Can reports whether role holds capability.
func Can(role string, c Capability) bool {
	if IsAdmin(role) {
		return true
	}
	for _, r := range grants[c] {
		if r == role {
			return true
		}
	}
	return false
}
