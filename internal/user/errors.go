package user

import "errors"

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("user with username or email already exists")
)
