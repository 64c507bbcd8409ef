package model

import "github.com/golang-jwt/jwt/v5"

// UserClaims are JWT claims identifying a registered user
type UserClaims struct {
	UserID string `json:"userId"`
	Nick   string `json:"nick"`
	jwt.RegisteredClaims
}

// RegisterRequest is the request body for account creation
type RegisterRequest struct {
	Name            string `json:"nome"`
	Nick            string `json:"nick"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned after successful login or registration
type LoginResponse struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}
