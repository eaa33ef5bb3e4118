package dbhelper

import (
	"context"
	"time"

	"github.com/securebidz/apiv1/mailer"
	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"gorm.io/gorm"
)

// The lockout guard works on a user row that the caller has locked inside a
// transaction, so counter updates cannot be lost between concurrent logins.
//
//	unlocked --(MAX_NUM_LOGIN_ATTEMPTS failures)--> locked
//	locked --(lockUntil passes)--> unlocked, counting restarts
//	any --(successful authentication)--> unlocked, counter cleared

type lockState struct {
	justLocked bool
	attempts   int
	lockUntil  time.Time
}

// releaseExpiredLock clears a lock whose lockUntil has passed. Counting
// restarts from zero so the next failure records attempt 1.
func releaseExpiredLock(tx *gorm.DB, user *models.User, now time.Time) error {
	if user.LockUntil == nil || user.LockUntil.After(now) {
		return nil
	}
	err := tx.Model(user).Updates(map[string]interface{}{
		"login_attempts":      0,
		"is_locked":           false,
		"lock_until":          nil,
		"lock_notified_until": nil,
	}).Error
	if err != nil {
		return utils.Internal(err)
	}
	user.LoginAttempts = 0
	user.IsLocked = false
	user.LockUntil = nil
	user.LockNotifiedUntil = nil
	return nil
}

func registerFailedAttempt(tx *gorm.DB, user *models.User, now time.Time) (lockState, error) {
	state := lockState{attempts: user.LoginAttempts + 1}
	updates := map[string]interface{}{
		"login_attempts":     state.attempts,
		"last_login_attempt": now,
	}
	if state.attempts >= utils.MAX_NUM_LOGIN_ATTEMPTS && !user.IsAccountLocked(now) {
		state.justLocked = true
		state.lockUntil = now.Add(utils.LOCKOUT_DURATION)
		updates["is_locked"] = true
		updates["lock_until"] = state.lockUntil
	}
	if err := tx.Model(user).Updates(updates).Error; err != nil {
		return state, utils.Internal(err)
	}
	user.LoginAttempts = state.attempts
	user.LastLoginAttempt = &now
	if state.justLocked {
		user.IsLocked = true
		user.LockUntil = &state.lockUntil
	}
	return state, nil
}

func registerSuccessfulLogin(tx *gorm.DB, user *models.User, now time.Time) error {
	err := tx.Model(user).Updates(map[string]interface{}{
		"login_attempts":      0,
		"is_locked":           false,
		"lock_until":          nil,
		"lock_notified_until": nil,
		"last_login_attempt":  nil,
		"last_login":          now,
	}).Error
	if err != nil {
		return utils.Internal(err)
	}
	user.LoginAttempts = 0
	user.IsLocked = false
	user.LockUntil = nil
	user.LastLogin = &now
	return nil
}

// afterFailedAttempt writes the audit trail for a failed password or MFA
// check and, when the failure tripped the lock, records the lock and tells
// the owner.
func (s *Store) afterFailedAttempt(ctx context.Context, user *models.User, state lockState, reason string, meta models.RequestMeta, riskScore int) {
	s.Audit.Record(ctx, user.ID, models.AUDIT_LOGIN_FAILED, models.Details{
		"email":    user.Email,
		"reason":   reason,
		"attempts": state.attempts,
	}, meta, riskScore)
	if !state.justLocked {
		return
	}
	s.Audit.Record(ctx, user.ID, models.AUDIT_ACCOUNT_LOCKED, models.Details{
		"attempts":  state.attempts,
		"lockUntil": state.lockUntil,
	}, meta, 80)
	s.sendLockoutNotice(ctx, user.ID, user.Email, state.lockUntil)
}

// sendLockoutNotice mails the owner at most once per lock period. The mark
// is only set after a successful send so a failed delivery is retried on
// the next locked attempt.
func (s *Store) sendLockoutNotice(ctx context.Context, userID, email string, lockUntil time.Time) {
	if err := s.notify(ctx, mailer.AccountLocked(email, lockUntil)); err != nil {
		return
	}
	s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND lock_until = ?", userID, lockUntil).
		Update("lock_notified_until", lockUntil)
}

func lockNoticePending(user *models.User) bool {
	if user.LockUntil == nil {
		return false
	}
	return user.LockNotifiedUntil == nil || !user.LockNotifiedUntil.Equal(*user.LockUntil)
}

// UnlockAccount lifts a lock on operator request.
func (s *Store) UnlockAccount(ctx context.Context, email string, meta models.RequestMeta) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := forUpdate(tx).Where("email = ?", normalizeEmail(email)).Limit(1).Find(&user)
		if result.Error != nil {
			return utils.Internal(result.Error)
		}
		if result.RowsAffected == 0 {
			return utils.ErrNotFound
		}
		return tx.Model(&user).Updates(map[string]interface{}{
			"login_attempts":      0,
			"is_locked":           false,
			"lock_until":          nil,
			"lock_notified_until": nil,
		}).Error
	})
	if err != nil {
		return nil, utils.AsError(err)
	}
	s.Audit.Record(ctx, user.ID, models.AUDIT_ACCOUNT_UNLOCKED, models.Details{"by": "operator"}, meta, 0)
	return &user, nil
}
