package user

// CreateUserRequest represents the request payload for creating a new user.
type CreateUserRequest struct {
	Name     string `label:"name" validate:"required,max=255"`
	Email    string `label:"email" validate:"required,email,max=255"`
	Password string `label:"password" validate:"required,max=72"`
}

// UpdateUserRequest represents the request payload for fully replacing an existing user.
type UpdateUserRequest struct {
	ID       int64  `label:"user_id" validate:"gt=0"`
	Name     string `label:"name" validate:"required,max=255"`
	Email    string `label:"email" validate:"required,email,max=255"`
	Password string `label:"password" validate:"required,max=72"`
}

// GetUserRequest represents the request payload for retrieving a user.
type GetUserRequest struct {
	ID int64 `label:"user_id" validate:"gt=0"`
}

// DeleteUserRequest represents the request payload for deleting a user.
type DeleteUserRequest struct {
	ID int64 `label:"user_id" validate:"gt=0"`
}

// ListUsersResponse represents the response payload for user listing.
type ListUsersResponse struct {
	Users []User
}

// User represents a user DTO (Data Transfer Object) for API responses.
// The password hash never leaves the use case layer.
type User struct {
	ID    int64
	Name  string
	Email string
}
