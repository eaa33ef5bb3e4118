package dbhelper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/securebidz/apiv1/mailer"
	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"gorm.io/gorm"
)

type LoginResult struct {
	User              *models.User
	Token             string
	RequiresMFA       bool
	MFAType           models.MFAType
	AvailableMFATypes []models.MFAType
	RiskScore         int
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isDuplicateKey(err error) bool {
	errString := err.Error()
	return strings.HasPrefix(errString, utils.GORM_ERR_CODE_DUPLICATE_KEY) ||
		strings.Contains(errString, utils.SQLITE_ERR_DUPLICATE_KEY)
}

// CreateUser signs a new user up and returns the user with a session token.
func (s *Store) CreateUser(ctx context.Context, name, email, password string, meta models.RequestMeta) (*models.User, string, error) {
	email = normalizeEmail(email)
	validation := utils.ValidatePassword(password)
	if !validation.Valid {
		return nil, "", utils.ErrWeakPassword.WithMessage(validation.Violations[0]).WithViolations(validation.Violations)
	}

	var existing int64
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, "", utils.Internal(err)
	}
	if existing > 0 {
		s.recordDuplicateSignup(ctx, email, meta)
		return nil, "", utils.ErrDuplicateEmail
	}

	passwordHash, err := utils.HashPassword(password)
	if err != nil {
		return nil, "", utils.Internal(fmt.Errorf("hashing password: %w", err))
	}
	now := s.now()
	user := models.User{
		Name:               strings.TrimSpace(name),
		Email:              email,
		PasswordHash:       passwordHash,
		MFAType:            models.MFA_TYPE_TOTP,
		LastPasswordChange: &now,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&models.PasswordHistory{UserID: user.ID, Hash: passwordHash, ChangedAt: now}).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			s.recordDuplicateSignup(ctx, email, meta)
			return nil, "", utils.ErrDuplicateEmail
		}
		return nil, "", utils.Internal(fmt.Errorf("creating user: %w", err))
	}

	s.Audit.Record(ctx, user.ID, models.AUDIT_SIGNUP, models.Details{"email": email, "name": user.Name}, meta, 0)
	token, err := s.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, "", utils.Internal(fmt.Errorf("issuing token: %w", err))
	}
	return &user, token, nil
}

func (s *Store) recordDuplicateSignup(ctx context.Context, email string, meta models.RequestMeta) {
	s.Audit.Record(ctx, "", models.AUDIT_SIGNUP, models.Details{"email": email, "reason": "User already exists"}, meta, 10)
}

func VerifyPassword(user *models.User, password string) bool {
	return utils.ComparePasswords(user.PasswordHash, password) == nil
}

// LoginUserWithPassword checks the password under the lockout guard. On
// success it either issues a token or, when MFA is on, asks for a code.
func (s *Store) LoginUserWithPassword(ctx context.Context, email, password string, meta models.RequestMeta) (*LoginResult, error) {
	email = normalizeEmail(email)
	var user models.User
	result := s.DB.WithContext(ctx).Where("email = ?", email).Limit(1).Find(&user)
	if result.Error != nil {
		return nil, utils.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		utils.CompareDummyPassword(password)
		s.Audit.Record(ctx, "", models.AUDIT_LOGIN_FAILED, models.Details{"email": email, "reason": "User not found"}, meta, 20)
		return nil, utils.ErrInvalidCredentials
	}

	var (
		locked     bool
		notice     bool
		passwordOK bool
		state      lockState
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, notice, passwordOK, state = false, false, false, lockState{}
		u, err := lockUser(tx, user.ID)
		if err != nil {
			return err
		}
		user = *u
		now := s.now()
		if err := releaseExpiredLock(tx, &user, now); err != nil {
			return err
		}
		if user.IsAccountLocked(now) {
			locked = true
			notice = lockNoticePending(&user)
			return nil
		}
		if !VerifyPassword(&user, password) {
			state, err = registerFailedAttempt(tx, &user, now)
			return err
		}
		passwordOK = true
		if user.MFAEnabled {
			// failures keep counting until the second factor passes
			return nil
		}
		return registerSuccessfulLogin(tx, &user, now)
	})
	if err != nil {
		return nil, utils.AsError(err)
	}

	if locked {
		s.Audit.Record(ctx, user.ID, models.AUDIT_LOGIN_FAILED, models.Details{"email": email, "reason": "Account locked"}, meta, 80)
		if notice {
			s.sendLockoutNotice(ctx, user.ID, user.Email, *user.LockUntil)
		}
		return nil, lockedError(&user, s.now())
	}
	if !passwordOK {
		s.afterFailedAttempt(ctx, &user, state, "Invalid password", meta, 30)
		return nil, utils.ErrInvalidCredentials
	}

	assessment := s.observeRisk(ctx, &user, meta, models.AUDIT_LOGIN_SUCCESS)
	if user.MFAEnabled {
		var backupCodes int64
		if err := s.DB.WithContext(ctx).Model(&models.BackupCode{}).Where("user_id = ?", user.ID).Count(&backupCodes).Error; err != nil {
			return nil, utils.Internal(err)
		}
		return &LoginResult{
			User:              &user,
			RequiresMFA:       true,
			MFAType:           user.MFAType,
			AvailableMFATypes: availableMFATypes(&user, backupCodes > 0),
			RiskScore:         assessment.RiskScore,
		}, nil
	}
	return s.completeLogin(ctx, &user, models.Details{"email": email, "method": "password"}, meta, assessment.RiskScore)
}

func lockedError(user *models.User, now time.Time) *utils.Error {
	if user.LockUntil == nil {
		return utils.ErrAccountLocked
	}
	return utils.ErrAccountLocked.WithMessage(utils.ACCOUNT_LOCKED_ERROR + " " + utils.GenerateBanMessage(*user.LockUntil, now))
}

// completeLogin records the successful login and issues the session token.
func (s *Store) completeLogin(ctx context.Context, user *models.User, details models.Details, meta models.RequestMeta, riskScore int) (*LoginResult, error) {
	token, err := s.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, utils.Internal(fmt.Errorf("issuing token: %w", err))
	}
	s.Audit.Record(ctx, user.ID, models.AUDIT_LOGIN_SUCCESS, details, meta, riskScore)
	return &LoginResult{User: user, Token: token, RiskScore: riskScore}, nil
}

// availableMFATypes lists the configured method first. Email is always
// offered since every account has an address on file.
func availableMFATypes(user *models.User, hasBackupCodes bool) []models.MFAType {
	types := []models.MFAType{user.MFAType}
	if user.MFAType != models.MFA_TYPE_EMAIL {
		types = append(types, models.MFA_TYPE_EMAIL)
	}
	if hasBackupCodes {
		types = append(types, models.MFA_TYPE_BACKUP)
	}
	return types
}

// ChangePassword replaces the password after checking the current one, the
// strength policy and the last PASSWORD_HISTORY_SIZE passwords.
func (s *Store) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta models.RequestMeta) error {
	var (
		user      models.User
		failure   *utils.Error
		reason    string
		changedAt = s.now()
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		failure, reason = nil, ""
		u, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		user = *u
		if !VerifyPassword(&user, currentPassword) {
			failure, reason = utils.ErrWrongPassword, "Invalid current password"
			return nil
		}
		validation := utils.ValidatePassword(newPassword)
		if !validation.Valid {
			failure = utils.ErrWeakPassword.WithMessage(validation.Violations[0]).WithViolations(validation.Violations)
			reason = "Password policy violation"
			return nil
		}
		var history []models.PasswordHistory
		if err := tx.Where("user_id = ?", user.ID).Order("changed_at desc, id desc").Limit(utils.PASSWORD_HISTORY_SIZE).Find(&history).Error; err != nil {
			return utils.Internal(err)
		}
		hashes := make([]string, 0, len(history)+1)
		hashes = append(hashes, user.PasswordHash)
		for _, h := range history {
			hashes = append(hashes, h.Hash)
		}
		if utils.PasswordInHistory(hashes, newPassword) {
			failure, reason = utils.ErrReusedPassword, "Password reused"
			return nil
		}

		newHash, err := utils.HashPassword(newPassword)
		if err != nil {
			return utils.Internal(fmt.Errorf("hashing password: %w", err))
		}
		err = tx.Model(&user).Updates(map[string]interface{}{
			"password_hash":        newHash,
			"last_password_change": changedAt,
		}).Error
		if err != nil {
			return utils.Internal(err)
		}
		return appendPasswordHistory(tx, user.ID, newHash, changedAt)
	})
	if err != nil {
		return utils.AsError(err)
	}
	if failure != nil {
		s.Audit.Record(ctx, user.ID, models.AUDIT_PASSWORD_CHANGE, models.Details{"success": false, "reason": reason}, meta, 25)
		return failure
	}
	s.notify(ctx, mailer.PasswordChanged(user.Email, changedAt))
	s.Audit.Record(ctx, user.ID, models.AUDIT_PASSWORD_CHANGE, models.Details{"success": true}, meta, 0)
	return nil
}

// appendPasswordHistory adds hash and evicts the oldest entries beyond
// PASSWORD_HISTORY_SIZE.
func appendPasswordHistory(tx *gorm.DB, userID, hash string, changedAt time.Time) error {
	entry := models.PasswordHistory{UserID: userID, Hash: hash, ChangedAt: changedAt}
	if err := tx.Create(&entry).Error; err != nil {
		return utils.Internal(err)
	}
	var keep []uint
	err := tx.Model(&models.PasswordHistory{}).
		Where("user_id = ?", userID).
		Order("changed_at desc, id desc").
		Limit(utils.PASSWORD_HISTORY_SIZE).
		Pluck("id", &keep).Error
	if err != nil {
		return utils.Internal(err)
	}
	err = tx.Where("user_id = ? AND id NOT IN ?", userID, keep).Delete(&models.PasswordHistory{}).Error
	if err != nil {
		return utils.Internal(err)
	}
	return nil
}
