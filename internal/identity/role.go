package identity

import "github.com/jmerrifield20/StorefrontProvenance/internal/provenance"

// RoleFor returns the only role allowed to record status.
func RoleFor(status provenance.Status) (Role, bool) {
	switch status {
	case provenance.StatusCreated:
		return RoleCreator, true
	case provenance.StatusPurchased:
		return RoleBuyer, true
	case provenance.StatusDelivered:
		return RoleFulfiller, true
	}
	return "", false
}

// CanRecord reports whether claims permit recording status.
func CanRecord(claims *ActorClaims, status provenance.Status) bool {
	if claims == nil {
		return false
	}
	role, ok := RoleFor(status)
	return ok && claims.Role == role
}
