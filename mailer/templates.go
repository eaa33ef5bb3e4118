package mailer

import (
	"fmt"
	"strings"
	"time"
)

const (
	SUBJECT_MFA_CODE         = "Your MFA Verification Code - SecureBidz"
	SUBJECT_ACCOUNT_LOCKED   = "Account Security Alert - SecureBidz"
	SUBJECT_PASSWORD_CHANGED = "Password Changed - SecureBidz"
	SUBJECT_SUSPICIOUS       = "Suspicious Activity Detected - SecureBidz"
)

func MFACode(to, code string, validFor time.Duration) Message {
	return Message{
		To:      to,
		Subject: SUBJECT_MFA_CODE,
		Body: fmt.Sprintf("Your verification code is: %s\n\nThis code expires in %d minutes. "+
			"If you did not try to sign in, change your password.\n", code, int(validFor.Minutes())),
	}
}

func AccountLocked(to string, unlockAt time.Time) Message {
	return Message{
		To:      to,
		Subject: SUBJECT_ACCOUNT_LOCKED,
		Body: fmt.Sprintf("Your account was locked after multiple failed login attempts.\n\n"+
			"It will unlock automatically at %s. If this was not you, reset your password.\n",
			unlockAt.UTC().Format(time.RFC1123)),
	}
}

func PasswordChanged(to string, changedAt time.Time) Message {
	return Message{
		To:      to,
		Subject: SUBJECT_PASSWORD_CHANGED,
		Body: fmt.Sprintf("Your password was changed at %s.\n\n"+
			"If you did not make this change, contact support immediately.\n",
			changedAt.UTC().Format(time.RFC1123)),
	}
}

func SuspiciousActivity(to string, riskScore int, reasons []string) Message {
	return Message{
		To:      to,
		Subject: SUBJECT_SUSPICIOUS,
		Body: fmt.Sprintf("We noticed unusual activity on your account (risk score %d):\n\n- %s\n",
			riskScore, strings.Join(reasons, "\n- ")),
	}
}
