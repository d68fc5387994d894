package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token related errors
	ErrTokenRevoked = errors.New("token revoked")
	ErrTokenExpired = errors.New("token expired")

	// Calculation related errors
	ErrCalculationNotFound = errors.New("calculation not found")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
