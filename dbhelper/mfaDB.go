package dbhelper

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/securebidz/apiv1/mailer"
	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"gorm.io/gorm"
)

type MFAEnrollment struct {
	Type       models.MFAType `json:"type"`
	Secret     string         `json:"secret,omitempty"`
	OtpauthURL string         `json:"otpauthUrl,omitempty"`
}

// EnableMFA starts enrollment. Nothing is switched on until ConfirmMFA
// sees one valid code for the pending configuration.
func (s *Store) EnableMFA(ctx context.Context, userID string, mfaType models.MFAType, meta models.RequestMeta) (*MFAEnrollment, error) {
	if mfaType != models.MFA_TYPE_TOTP && mfaType != models.MFA_TYPE_EMAIL {
		return nil, utils.ErrInvalidMfaRequest
	}
	enrollment := &MFAEnrollment{Type: mfaType}
	var user models.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		user = *u
		if user.MFAEnabled {
			return utils.ErrMfaAlreadyEnabled
		}
		updates := map[string]interface{}{
			"mfa_pending_type":   mfaType,
			"mfa_pending_secret": nil,
		}
		if mfaType == models.MFA_TYPE_TOTP {
			secret, err := utils.NewTOTPSecret()
			if err != nil {
				return utils.Internal(err)
			}
			updates["mfa_pending_secret"] = secret
			enrollment.Secret = secret
			enrollment.OtpauthURL = utils.TOTPProvisioningURI(secret, user.Email)
		}
		return tx.Model(&user).Updates(updates).Error
	})
	if err != nil {
		return nil, utils.AsError(err)
	}
	if mfaType == models.MFA_TYPE_EMAIL {
		if err := s.issueEmailCode(ctx, &user); err != nil {
			return nil, err
		}
	}
	return enrollment, nil
}

// ConfirmMFA checks code against the pending configuration, switches MFA on
// and returns a fresh set of plain backup codes.
func (s *Store) ConfirmMFA(ctx context.Context, userID, code string, meta models.RequestMeta) ([]string, error) {
	var (
		user        models.User
		valid       bool
		backupCodes []string
		method      models.MFAType
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		valid, backupCodes = false, nil
		u, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		user = *u
		if user.MFAEnabled {
			return utils.ErrMfaAlreadyEnabled
		}
		method = user.MFAPendingType
		now := s.now()
		switch method {
		case models.MFA_TYPE_TOTP:
			valid = user.MFAPendingSecret != nil && utils.VerifyTOTP(*user.MFAPendingSecret, code, now)
		case models.MFA_TYPE_EMAIL:
			valid, err = consumeEmailCode(tx, &user, code, now)
			if err != nil {
				return err
			}
		default:
			return utils.ErrMfaNotPending
		}
		if !valid {
			return nil
		}

		codes, hashes, err := utils.GenerateBackupCodes()
		if err != nil {
			return utils.Internal(err)
		}
		updates := map[string]interface{}{
			"mfa_enabled":        true,
			"mfa_type":           method,
			"mfa_secret":         nil,
			"mfa_pending_type":   "",
			"mfa_pending_secret": nil,
		}
		if method == models.MFA_TYPE_TOTP {
			updates["mfa_secret"] = *user.MFAPendingSecret
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return utils.Internal(err)
		}
		if err := replaceBackupCodes(tx, user.ID, hashes); err != nil {
			return err
		}
		backupCodes = codes
		return nil
	})
	if err != nil {
		return nil, utils.AsError(err)
	}
	if !valid {
		s.Audit.Record(ctx, user.ID, models.AUDIT_MFA_ENABLED, models.Details{
			"success": false,
			"method":  strings.ToUpper(string(method)),
			"reason":  utils.INVALID_MFA_CODE_ERROR,
		}, meta, 40)
		return nil, utils.ErrInvalidMfaCode
	}
	s.Audit.Record(ctx, user.ID, models.AUDIT_MFA_ENABLED, models.Details{
		"success": true,
		"method":  strings.ToUpper(string(method)),
	}, meta, 0)
	return backupCodes, nil
}

// DisableMFA requires the current password, then clears every MFA secret
// and discards the backup codes.
func (s *Store) DisableMFA(ctx context.Context, userID, password string, meta models.RequestMeta) error {
	var (
		user     models.User
		passwdOK bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		user = *u
		passwdOK = VerifyPassword(&user, password)
		if !passwdOK {
			return nil
		}
		err = tx.Model(&user).Updates(map[string]interface{}{
			"mfa_enabled":            false,
			"mfa_secret":             nil,
			"mfa_pending_type":       "",
			"mfa_pending_secret":     nil,
			"email_mfa_code":         nil,
			"email_mfa_code_expires": nil,
		}).Error
		if err != nil {
			return utils.Internal(err)
		}
		return replaceBackupCodes(tx, user.ID, nil)
	})
	if err != nil {
		return utils.AsError(err)
	}
	if !passwdOK {
		s.Audit.Record(ctx, user.ID, models.AUDIT_MFA_DISABLED, models.Details{"success": false, "reason": "Invalid password"}, meta, 25)
		return utils.ErrWrongPassword.WithMessage(utils.WRONG_PASSWORD_ERROR)
	}
	s.Audit.Record(ctx, user.ID, models.AUDIT_MFA_DISABLED, models.Details{"success": true}, meta, 10)
	return nil
}

// SendLoginMFACode mails a fresh code to a user part way through login.
// Any earlier unused code stops working.
func (s *Store) SendLoginMFACode(ctx context.Context, userID string, meta models.RequestMeta) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		if err == utils.ErrNotFound {
			return utils.ErrInvalidMfaRequest
		}
		return err
	}
	if !user.MFAEnabled {
		return utils.ErrInvalidMfaRequest
	}
	if now := s.now(); user.IsAccountLocked(now) {
		return lockedError(user, now)
	}
	return s.issueEmailCode(ctx, user)
}

func (s *Store) issueEmailCode(ctx context.Context, user *models.User) error {
	code, err := utils.GetVerificationCode()
	if err != nil {
		return utils.Internal(err)
	}
	expires := s.now().Add(utils.EMAIL_CODE_DURATION)
	err = s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"email_mfa_code":         utils.HashCode(code),
		"email_mfa_code_expires": expires,
	}).Error
	if err != nil {
		return utils.Internal(fmt.Errorf("storing email code: %w", err))
	}
	if err := s.notify(ctx, mailer.MFACode(user.Email, code, utils.EMAIL_CODE_DURATION)); err != nil {
		return utils.Internal(fmt.Errorf("sending email code: %w", err))
	}
	return nil
}

// consumeEmailCode clears the stored code whatever the outcome, so each
// code can be tried once. The row is locked by the caller.
func consumeEmailCode(tx *gorm.DB, user *models.User, code string, now time.Time) (bool, error) {
	if user.EmailMFACode == nil {
		return false, nil
	}
	stored := *user.EmailMFACode
	expires := user.EmailMFACodeExpires
	result := tx.Model(&models.User{}).
		Where("id = ? AND email_mfa_code = ?", user.ID, stored).
		Updates(map[string]interface{}{
			"email_mfa_code":         nil,
			"email_mfa_code_expires": nil,
		})
	if result.Error != nil {
		return false, utils.Internal(result.Error)
	}
	user.EmailMFACode = nil
	user.EmailMFACodeExpires = nil
	if result.RowsAffected != 1 {
		return false, nil
	}
	if expires == nil || !now.Before(*expires) {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(utils.HashCode(code))) == 1, nil
}

// consumeBackupCode removes the matching backup code for good.
func consumeBackupCode(tx *gorm.DB, userID, code string) (bool, error) {
	var codes []models.BackupCode
	if err := tx.Where("user_id = ?", userID).Find(&codes).Error; err != nil {
		return false, utils.Internal(err)
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range codes {
		if utils.CompareBackupCode(c.CodeHash, code) != nil {
			continue
		}
		result := tx.Delete(&models.BackupCode{}, c.ID)
		if result.Error != nil {
			return false, utils.Internal(result.Error)
		}
		return result.RowsAffected == 1, nil
	}
	return false, nil
}

func replaceBackupCodes(tx *gorm.DB, userID string, hashes []string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&models.BackupCode{}).Error; err != nil {
		return utils.Internal(err)
	}
	if len(hashes) == 0 {
		return nil
	}
	codes := make([]models.BackupCode, 0, len(hashes))
	for _, h := range hashes {
		codes = append(codes, models.BackupCode{UserID: userID, CodeHash: h})
	}
	if err := tx.Create(&codes).Error; err != nil {
		return utils.Internal(err)
	}
	return nil
}

// VerifyMFA completes a login that stopped at the MFA step. A wrong code
// counts as a failed login attempt for the lockout guard.
func (s *Store) VerifyMFA(ctx context.Context, userID, code string, mfaType models.MFAType, meta models.RequestMeta) (*LoginResult, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		if err == utils.ErrNotFound {
			s.Audit.Record(ctx, "", models.AUDIT_LOGIN_FAILED, models.Details{"reason": utils.INVALID_MFA_REQUEST_ERROR}, meta, 40)
			return nil, utils.ErrInvalidMfaRequest
		}
		return nil, err
	}
	if !user.MFAEnabled {
		s.Audit.Record(ctx, user.ID, models.AUDIT_LOGIN_FAILED, models.Details{"reason": utils.INVALID_MFA_REQUEST_ERROR}, meta, 40)
		return nil, utils.ErrInvalidMfaRequest
	}
	if mfaType == "" {
		mfaType = user.MFAType
	}

	var (
		locked bool
		valid  bool
		state  lockState
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, valid, state = false, false, lockState{}
		u, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		user = u
		now := s.now()
		if err := releaseExpiredLock(tx, user, now); err != nil {
			return err
		}
		if user.IsAccountLocked(now) {
			locked = true
			return nil
		}
		switch mfaType {
		case models.MFA_TYPE_TOTP:
			valid = user.MFAType == models.MFA_TYPE_TOTP && user.MFASecret != nil &&
				utils.VerifyTOTP(*user.MFASecret, code, now)
		case models.MFA_TYPE_EMAIL:
			valid, err = consumeEmailCode(tx, user, code, now)
		case models.MFA_TYPE_BACKUP:
			valid, err = consumeBackupCode(tx, user.ID, code)
		default:
			return utils.ErrInvalidMfaRequest
		}
		if err != nil {
			return err
		}
		if !valid {
			state, err = registerFailedAttempt(tx, user, now)
			return err
		}
		return registerSuccessfulLogin(tx, user, now)
	})
	if err != nil {
		return nil, utils.AsError(err)
	}
	if locked {
		s.Audit.Record(ctx, user.ID, models.AUDIT_LOGIN_FAILED, models.Details{"reason": "Account locked", "method": "MFA"}, meta, 80)
		return nil, lockedError(user, s.now())
	}
	if !valid {
		s.afterFailedAttempt(ctx, user, state, utils.INVALID_MFA_CODE_ERROR, meta, 40)
		return nil, utils.ErrInvalidMfaCode
	}
	return s.completeLogin(ctx, user, models.Details{"method": "MFA", "type": string(mfaType)}, meta, 0)
}
