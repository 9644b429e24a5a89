package models

// Actor is the caller identity supplied by the auth collaborator.
type Actor struct {
	CustomerID int64  `json:"customer_id"`
	Role       string `json:"role"`
}

// Privileged reports whether the actor may act on other customers' reservations.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleStaff
}

func SystemActor() Actor {
	return Actor{Role: RoleAdmin}
}
