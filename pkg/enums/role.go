package enums

// Role is the marketplace-wide role carried in access tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var roles = []Role{RoleUser, RoleAdmin}

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool { return known(r, roles) }

func ParseRole(value string) (Role, error) {
	return parse(value, roles, "role")
}
