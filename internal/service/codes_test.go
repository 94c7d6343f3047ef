package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-advanced-auth/internal/mailer"
	"github.com/pribylovaa/go-advanced-auth/internal/models"
	"github.com/pribylovaa/go-advanced-auth/internal/storage"
)

func TestVerifyEmail_OK(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	user := &models.User{ID: "u1", Email: "a@x.com", Name: "A"}

	verified := *user
	verified.IsVerified = true

	d.st.EXPECT().ConsumeCode(gomock.Any(), models.PurposeEmailVerification, "123456", d.clock.Now(),
		storage.CodeEffect{MarkVerified: true}).Return(&verified, nil)
	d.mail.EXPECT().Send(gomock.Any(), mailer.KindWelcome, "a@x.com", map[string]string{mailer.ParamName: "A"}).Return(nil)

	got, err := svc.VerifyEmail(context.Background(), " 123456 ")
	require.NoError(t, err)
	require.True(t, got.IsVerified)
}

// TestVerifyEmail_Invalid — неверный, просроченный и пустой код сводятся к одной ошибке.
func TestVerifyEmail_Invalid(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	d.st.EXPECT().ConsumeCode(gomock.Any(), models.PurposeEmailVerification, "000000", gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)

	_, err := svc.VerifyEmail(context.Background(), "000000")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)

	_, err = svc.VerifyEmail(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

// TestVerifyEmail_MailFailureKeepsState — ошибка приветственного письма не откатывает подтверждение.
func TestVerifyEmail_MailFailureKeepsState(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	user := &models.User{ID: "u1", Email: "a@x.com", IsVerified: true}

	d.st.EXPECT().ConsumeCode(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(user, nil)
	d.mail.EXPECT().Send(gomock.Any(), mailer.KindWelcome, gomock.Any(), gomock.Any()).Return(errors.New("smtp"))

	got, err := svc.VerifyEmail(context.Background(), "123456")
	require.NoError(t, err)
	require.True(t, got.IsVerified)
}

// TestVerifyEmail_StoreFailure — ошибка хранилища возвращается как есть,
// письмо не отправляется, других записей нет.
func TestVerifyEmail_StoreFailure(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	errDB := errors.New("db down")

	d.st.EXPECT().ConsumeCode(gomock.Any(), models.PurposeEmailVerification, "123456", gomock.Any(),
		storage.CodeEffect{MarkVerified: true}).Return(nil, errDB)

	_, err := svc.VerifyEmail(context.Background(), "123456")
	require.ErrorIs(t, err, errDB)
	require.NotErrorIs(t, err, ErrInvalidOrExpiredCode)
}

// TestResend_ReusesActiveCode — действующий код не перевыпускается.
func TestResend_ReusesActiveCode(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	user := &models.User{
		ID:           "u1",
		Email:        "a@x.com",
		Verification: models.OneTimeCode{Value: "111111", ExpiresAt: d.clock.Now().Add(time.Hour)},
	}

	d.st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").Return(user, nil)
	d.mail.EXPECT().Send(gomock.Any(), mailer.KindVerification, "a@x.com", map[string]string{mailer.ParamCode: "111111"}).Return(nil)

	require.NoError(t, svc.ResendVerificationCode(context.Background(), "a@x.com"))
}

func TestResend_ExpiredCodeRotates(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	user := &models.User{
		ID:           "u1",
		Email:        "a@x.com",
		Verification: models.OneTimeCode{Value: "111111", ExpiresAt: d.clock.Now().Add(-time.Second)},
	}

	var issued models.OneTimeCode
	d.st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").Return(user, nil)
	d.st.EXPECT().SetCode(gomock.Any(), "u1", models.PurposeEmailVerification, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ models.CodePurpose, c models.OneTimeCode) error {
			issued = c
			return nil
		})
	d.mail.EXPECT().Send(gomock.Any(), mailer.KindVerification, "a@x.com", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ mailer.Kind, _ string, params map[string]string) error {
			require.Equal(t, issued.Value, params[mailer.ParamCode])
			return nil
		})

	require.NoError(t, svc.ResendVerificationCode(context.Background(), "a@x.com"))
	require.NotEqual(t, "111111", issued.Value)
	require.Equal(t, d.clock.Now().Add(24*time.Hour), issued.ExpiresAt)
}

func TestResend_Errors(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)

	require.ErrorIs(t, svc.ResendVerificationCode(context.Background(), " "), ErrValidation)

	d.st.EXPECT().UserByEmail(gomock.Any(), "b@x.com").Return(nil, storage.ErrNotFound)
	require.ErrorIs(t, svc.ResendVerificationCode(context.Background(), "b@x.com"), ErrUserNotFound)

	d.st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").Return(&models.User{ID: "u1", IsVerified: true}, nil)
	require.ErrorIs(t, svc.ResendVerificationCode(context.Background(), "a@x.com"), ErrAlreadyVerified)
}

func TestForgotPassword_OK(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	user := &models.User{ID: "u1", Email: "a@x.com"}

	var issued models.OneTimeCode
	d.st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").Return(user, nil)
	d.st.EXPECT().SetCode(gomock.Any(), "u1", models.PurposePasswordReset, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ models.CodePurpose, c models.OneTimeCode) error {
			issued = c
			return nil
		})
	d.mail.EXPECT().Send(gomock.Any(), mailer.KindPasswordReset, "a@x.com", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ mailer.Kind, _ string, params map[string]string) error {
			require.Equal(t, "http://localhost:5173/reset-password/"+issued.Value, params[mailer.ParamResetURL])
			return nil
		})

	require.NoError(t, svc.ForgotPassword(context.Background(), "a@x.com"))
	require.Regexp(t, `^[0-9a-f]{40}$`, issued.Value)
	require.Equal(t, d.clock.Now().Add(time.Hour), issued.ExpiresAt)
}

func TestForgotPassword_UnknownUser(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	d.st.EXPECT().UserByEmail(gomock.Any(), "b@x.com").Return(nil, storage.ErrNotFound)

	require.ErrorIs(t, svc.ForgotPassword(context.Background(), "b@x.com"), ErrUserNotFound)
}

func TestResetPassword_OK(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	user := &models.User{ID: "u1", Email: "a@x.com"}

	d.st.EXPECT().ConsumeCode(gomock.Any(), models.PurposePasswordReset, "tok", d.clock.Now(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ models.CodePurpose, _ string, _ time.Time, effect storage.CodeEffect) (*models.User, error) {
			require.False(t, effect.MarkVerified)
			require.True(t, checkPassword(effect.PasswordHash, "new-pw"))
			return user, nil
		})
	d.mail.EXPECT().Send(gomock.Any(), mailer.KindResetSuccess, "a@x.com", gomock.Any()).Return(nil)

	require.NoError(t, svc.ResetPassword(context.Background(), "tok", "new-pw"))
}

// TestResetPassword_EmptyPasswordKeepsToken — пустой пароль отклоняется до погашения токена.
func TestResetPassword_EmptyPasswordKeepsToken(t *testing.T) {
	t.Parallel()

	svc, _ := newSvc(t)

	require.ErrorIs(t, svc.ResetPassword(context.Background(), "tok", ""), ErrValidation)
}

// TestResetPassword_TooLongKeepsToken — пароль длиннее 72 байт отклоняется
// как ошибка ввода и не гасит токен.
func TestResetPassword_TooLongKeepsToken(t *testing.T) {
	t.Parallel()

	svc, _ := newSvc(t)

	err := svc.ResetPassword(context.Background(), "tok", strings.Repeat("p", maxPasswordBytes+1))
	require.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestResetPassword_InvalidToken(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	d.st.EXPECT().ConsumeCode(gomock.Any(), models.PurposePasswordReset, "tok", gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)

	require.ErrorIs(t, svc.ResetPassword(context.Background(), "tok", "pw"), ErrInvalidOrExpiredCode)
	require.ErrorIs(t, svc.ResetPassword(context.Background(), "", "pw"), ErrInvalidOrExpiredCode)
}

func TestClearExpiredCodes(t *testing.T) {
	t.Parallel()

	svc, d := newSvc(t)
	d.st.EXPECT().ClearExpiredCodes(gomock.Any(), d.clock.Now()).Return(nil)

	require.NoError(t, svc.ClearExpiredCodes(context.Background()))
}

func TestNewCode_Shapes(t *testing.T) {
	t.Parallel()

	svc, _ := newSvc(t)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		c, err := svc.newCode(models.PurposeEmailVerification)
		require.NoError(t, err)
		require.Len(t, c.Value, 6)
		require.False(t, strings.HasPrefix(c.Value, "0"))
		seen[c.Value] = struct{}{}
	}
	require.Greater(t, len(seen), 1)

	c, err := svc.newCode(models.PurposePasswordReset)
	require.NoError(t, err)
	require.Len(t, c.Value, 2*resetTokenBytes)
}
