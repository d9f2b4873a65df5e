package rbac

// Role names. Keep these stable; they are part of auth contracts.
//
// Members are the coin-spending side of a call; creators are the coin-earning
// side. Admin is back-office only and never participates in calls.
const (
	RoleMember  = "member"
	RoleCreator = "creator"
	RoleAdmin   = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// CanSpend reports whether the role may initiate (and pay for) calls.
func CanSpend(role string) bool { return role == RoleMember }

// CanEarn reports whether the role may receive (and be paid for) calls.
func CanEarn(role string) bool { return role == RoleCreator }
