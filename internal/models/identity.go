package models

// UnknownIdentityKey is the sentinel canonical key for commits whose author
// field is empty or malformed.
const UnknownIdentityKey = "unknown"

// Alias is one raw (name, email) author pair as it appears in history
type Alias struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Identity is a canonical author after alias merging. The key is the
// lowercased primary email, or a normalized display name when no usable
// email exists.
type Identity struct {
	Key     string  `json:"key"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Aliases []Alias `json:"aliases"`
}

// HasAlias checks whether the given raw pair maps to this identity
func (i *Identity) HasAlias(name, email string) bool {
	for _, a := range i.Aliases {
		if a.Name == name && a.Email == email {
			return true
		}
	}
	return false
}
