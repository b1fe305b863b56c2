package storage

import "errors"

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountExists        = errors.New("account already exists")
	ErrEmailTaken           = errors.New("email already taken")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrResetKeyNotFound     = errors.New("reset key not found")
)
