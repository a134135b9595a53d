package models

// ActorRole discriminates the caller identity resolved at the API boundary.
type ActorRole string

const (
	RoleBooker   ActorRole = "BOOKER"
	RoleProvider ActorRole = "PROVIDER"
	RoleAdmin    ActorRole = "ADMIN"
)

// Actor is the typed caller identity passed into the core, replacing
// duck-typed profile lookups at call sites.
type Actor struct {
	Role ActorRole
	ID   string
}

func BookerActor(id string) Actor   { return Actor{Role: RoleBooker, ID: id} }
func ProviderActor(id string) Actor { return Actor{Role: RoleProvider, ID: id} }
func AdminActor(id string) Actor    { return Actor{Role: RoleAdmin, ID: id} }
