package circulation

import "github.com/mrlokans/library/internal/entities"

// Actor is the user on whose behalf an operation runs.
type Actor struct {
	UserID uint
	Role   entities.UserRole
}

// ActorFor builds the actor for an authenticated user.
func ActorFor(user *entities.User) Actor {
	if user == nil {
		return Actor{}
	}
	return Actor{UserID: user.ID, Role: user.Role}
}

// SystemActor is used by maintenance jobs and CLI commands.
var SystemActor = Actor{Role: entities.UserRoleAdmin}

// IsAdmin reports whether the actor may manage the catalog and accounts.
func (a Actor) IsAdmin() bool {
	return a.Role == entities.UserRoleAdmin
}

// Anonymous reports whether the actor is not tied to any account.
func (a Actor) Anonymous() bool {
	return a.UserID == 0 && !a.IsAdmin()
}

// Owns reports whether the actor may act on the reservation.
func (a Actor) Owns(r *entities.Reservation) bool {
	return a.IsAdmin() || (a.UserID != 0 && r.UserID == a.UserID)
}
