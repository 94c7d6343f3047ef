package models

import "time"

// TokenPair — пара токенов, выдаваемая при регистрации/входе/обновлении.
//
// Описание:
//   - AccessToken — короткоживущий JWT, проверяется только по подписи и сроку;
//   - RefreshToken — долгоживущий JWT, дополнительно сверяется с реестром
//     отзыва (действителен лишь последний выданный пользователю);
//   - AccessExpiresAt/RefreshExpiresAt — моменты истечения (UTC).
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
