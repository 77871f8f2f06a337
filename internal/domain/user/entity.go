package user

// User represents a user entity in the system.
type User struct {
	ID           int64  // ID is assigned by storage and never changes
	Name         string // Name is the full name of the user
	Email        string // Email is the email address of the user
	PasswordHash string // PasswordHash is the bcrypt hash of the user's password
}
