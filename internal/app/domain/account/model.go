// Package account defines the account record and the permission vocabulary
// gating every mutation and read.
package account

// Permission names. The genesis admin holds all three.
const (
	PermChangeAccountPermissions = "change_account_permissions"
	PermRegisterAccount          = "register_account"
	PermCreateEntity             = "create_entity"
)

// Account is a registered actor. The address is immutable; permissions and
// access level change only through authorized modification.
type Account struct {
	Address      string   `json:"address" db:"address"`
	Permissions  []string `json:"permissions" db:"permissions"`
	AccessLevel  int      `json:"accessLevel" db:"access_level"`
	RegisteredBy string   `json:"registeredBy" db:"registered_by"`
	RegisteredOn int64    `json:"registeredOn" db:"registered_on"`
}

// HasPermission reports whether the account holds the named permission.
func (a Account) HasPermission(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Update is a partial account modification. Nil fields are left unchanged.
type Update struct {
	Permissions *[]string
	AccessLevel *int
}
