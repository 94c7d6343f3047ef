package models

import "time"

// CodePurpose — назначение одноразового кода.
type CodePurpose string

const (
	// PurposeEmailVerification — шестизначный код подтверждения e-mail.
	PurposeEmailVerification CodePurpose = "verify_email"
	// PurposePasswordReset — случайный токен сброса пароля.
	PurposePasswordReset CodePurpose = "reset_password"
)

// OneTimeCode — значение одноразового кода и абсолютный момент его истечения.
// Пустой Value означает отсутствие кода (не выдан или уже погашен).
type OneTimeCode struct {
	Value     string
	ExpiresAt time.Time
}

// Empty сообщает, что код отсутствует.
func (c OneTimeCode) Empty() bool {
	return c.Value == ""
}

// ActiveAt сообщает, что код выдан и ещё не истёк в момент now.
func (c OneTimeCode) ActiveAt(now time.Time) bool {
	return !c.Empty() && now.Before(c.ExpiresAt)
}
