package types

// User is an admin login identity. Hash is the bcrypt password hash.
type User struct {
	Username string `json:"username"`
	Hash     []byte `json:"hash"`
	Role     string `json:"role"`
}
