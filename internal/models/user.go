// Package models содержит доменные сущности auth-сервиса.
package models

import "time"

// User — учётная запись пользователя (документ MongoDB).
// Важно:
//   - ID — ObjectID MongoDB, наружу/вовнутрь конвертируется в hex-строку;
//   - PasswordHash никогда не покидает сервисный слой;
//   - Verification/Reset — встроенные одноразовые коды, у каждого не более
//     одного актуального значения.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	IsVerified   bool
	LastLogin    time.Time
	Verification OneTimeCode
	Reset        OneTimeCode
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Code возвращает одноразовый код пользователя для указанного назначения.
func (u *User) Code(purpose CodePurpose) OneTimeCode {
	if purpose == PurposePasswordReset {
		return u.Reset
	}

	return u.Verification
}

// SetCode записывает одноразовый код пользователя для указанного назначения.
func (u *User) SetCode(purpose CodePurpose, code OneTimeCode) {
	if purpose == PurposePasswordReset {
		u.Reset = code
		return
	}

	u.Verification = code
}
