package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pribylovaa/go-advanced-auth/internal/models"
	"github.com/pribylovaa/go-advanced-auth/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Имена полей документа пользователя.
const (
	fieldEmail              = "email"
	fieldPassword           = "password"
	fieldIsVerified         = "isVerified"
	fieldLastLogin          = "lastLogin"
	fieldVerificationToken  = "verificationToken"
	fieldVerificationExpire = "verificationTokenExpiresAt"
	fieldResetToken         = "resetPasswordToken"
	fieldResetExpire        = "resetPasswordExpiresAt"
	fieldUpdatedAt          = "updatedAt"
)

// userDoc — представление пользователя в коллекции users.
// Коды хранятся парой полей (значение + срок) и удаляются через $unset после погашения.
type userDoc struct {
	ID                         primitive.ObjectID `bson:"_id,omitempty"`
	Email                      string             `bson:"email"`
	Name                       string             `bson:"name"`
	Password                   string             `bson:"password"`
	IsVerified                 bool               `bson:"isVerified"`
	LastLogin                  time.Time          `bson:"lastLogin"`
	VerificationToken          string             `bson:"verificationToken,omitempty"`
	VerificationTokenExpiresAt time.Time          `bson:"verificationTokenExpiresAt,omitempty"`
	ResetPasswordToken         string             `bson:"resetPasswordToken,omitempty"`
	ResetPasswordExpiresAt     time.Time          `bson:"resetPasswordExpiresAt,omitempty"`
	CreatedAt                  time.Time          `bson:"createdAt"`
	UpdatedAt                  time.Time          `bson:"updatedAt"`
}

// MongoDB DateTime хранит миллисекунды.
func toMS(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

func toDoc(u *models.User) userDoc {
	return userDoc{
		Email:                      u.Email,
		Name:                       u.Name,
		Password:                   u.PasswordHash,
		IsVerified:                 u.IsVerified,
		LastLogin:                  toMS(u.LastLogin),
		VerificationToken:          u.Verification.Value,
		VerificationTokenExpiresAt: toMS(u.Verification.ExpiresAt),
		ResetPasswordToken:         u.Reset.Value,
		ResetPasswordExpiresAt:     toMS(u.Reset.ExpiresAt),
		CreatedAt:                  toMS(u.CreatedAt),
		UpdatedAt:                  toMS(u.UpdatedAt),
	}
}

func fromDoc(d *userDoc) *models.User {
	u := &models.User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.Password,
		IsVerified:   d.IsVerified,
		LastLogin:    d.LastLogin.UTC(),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}

	if d.VerificationToken != "" {
		u.Verification = models.OneTimeCode{Value: d.VerificationToken, ExpiresAt: d.VerificationTokenExpiresAt.UTC()}
	}

	if d.ResetPasswordToken != "" {
		u.Reset = models.OneTimeCode{Value: d.ResetPasswordToken, ExpiresAt: d.ResetPasswordExpiresAt.UTC()}
	}

	return u
}

// codeFields возвращает пару полей (значение, срок) для назначения кода.
func codeFields(purpose models.CodePurpose) (string, string) {
	if purpose == models.PurposePasswordReset {
		return fieldResetToken, fieldResetExpire
	}

	return fieldVerificationToken, fieldVerificationExpire
}

// SaveUser вставляет документ пользователя и проставляет user.ID.
// Нарушение уникального индекса email — storage.ErrAlreadyExists.
func (m *Mongo) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongo.SaveUser"

	res, err := m.users.InsertOne(ctx, toDoc(user))
	if err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: insert: %w", op, err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("%s: inserted id type", op)
	}

	user.ID = oid.Hex()
	return nil
}

// UserByEmail находит пользователя по e-mail.
func (m *Mongo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongo.UserByEmail"

	return m.findOne(ctx, op, bson.D{{Key: fieldEmail, Value: email}})
}

// UserByID находит пользователя по ID.
// Некорректный формат id трактуется как «нет такой записи».
func (m *Mongo) UserByID(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.mongo.UserByID"

	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return m.findOne(ctx, op, bson.D{{Key: "_id", Value: oid}})
}

// TouchLastLogin обновляет момент последнего входа.
func (m *Mongo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const op = "storage.mongo.TouchLastLogin"

	return m.setFields(ctx, op, id, bson.D{{Key: fieldLastLogin, Value: toMS(at)}})
}

// SetCode перезаписывает код указанного назначения.
func (m *Mongo) SetCode(ctx context.Context, id string, purpose models.CodePurpose, code models.OneTimeCode) error {
	const op = "storage.mongo.SetCode"

	valueField, expireField := codeFields(purpose)

	return m.setFields(ctx, op, id, bson.D{
		{Key: valueField, Value: code.Value},
		{Key: expireField, Value: toMS(code.ExpiresAt)},
	})
}

// ConsumeCode атомарно гасит код через FindOneAndUpdate: фильтр по значению и
// сроку, $unset обоих полей и $set полей из effect в одном обновлении документа.
// Два параллельных погашения одного кода не могут оба завершиться успешно.
func (m *Mongo) ConsumeCode(ctx context.Context, purpose models.CodePurpose, value string, now time.Time, effect storage.CodeEffect) (*models.User, error) {
	const op = "storage.mongo.ConsumeCode"

	if value == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	valueField, expireField := codeFields(purpose)

	filter := bson.D{
		{Key: valueField, Value: value},
		{Key: expireField, Value: bson.D{{Key: "$gt", Value: toMS(now)}}},
	}
	set := bson.D{{Key: fieldUpdatedAt, Value: toMS(time.Now())}}
	if effect.MarkVerified {
		set = append(set, bson.E{Key: fieldIsVerified, Value: true})
	}
	if effect.PasswordHash != "" {
		set = append(set, bson.E{Key: fieldPassword, Value: effect.PasswordHash})
	}

	update := bson.D{
		{Key: "$unset", Value: bson.D{{Key: valueField, Value: ""}, {Key: expireField, Value: ""}}},
		{Key: "$set", Value: set},
	}

	var doc userDoc
	err := m.users.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return fromDoc(&doc), nil
}

// ClearExpiredCodes стирает истёкшие коды обоих назначений.
func (m *Mongo) ClearExpiredCodes(ctx context.Context, now time.Time) error {
	const op = "storage.mongo.ClearExpiredCodes"

	for _, p := range []models.CodePurpose{models.PurposeEmailVerification, models.PurposePasswordReset} {
		valueField, expireField := codeFields(p)

		_, err := m.users.UpdateMany(ctx,
			bson.D{{Key: expireField, Value: bson.D{{Key: "$lte", Value: toMS(now)}}}},
			bson.D{{Key: "$unset", Value: bson.D{{Key: valueField, Value: ""}, {Key: expireField, Value: ""}}}},
		)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", op, p, err)
		}
	}

	return nil
}

func (m *Mongo) findOne(ctx context.Context, op string, filter bson.D) (*models.User, error) {
	var doc userDoc
	if err := m.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return fromDoc(&doc), nil
}

// setFields выполняет $set по _id и всегда обновляет updatedAt.
func (m *Mongo) setFields(ctx context.Context, op, id string, fields bson.D) error {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	fields = append(fields, bson.E{Key: fieldUpdatedAt, Value: toMS(time.Now())})

	res, err := m.users.UpdateByID(ctx, oid, bson.D{{Key: "$set", Value: fields}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}
