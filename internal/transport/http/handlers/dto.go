package handlers

import (
	"time"

	"github.com/pribylovaa/go-advanced-auth/internal/models"
)

// Запросы.

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// Ответы.

// UserDTO — пользователь в ответах API; хеш пароля и коды наружу не отдаются.
type UserDTO struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	IsVerified bool       `json:"isVerified"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Response — успешный ответ.
type Response struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	User    *UserDTO `json:"user,omitempty"`
}

func userFromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	dto := &UserDTO{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
	if !u.LastLogin.IsZero() {
		last := u.LastLogin
		dto.LastLogin = &last
	}

	return dto
}

func ok(msg string, u *models.User) Response {
	return Response{Success: true, Message: msg, User: userFromModel(u)}
}
