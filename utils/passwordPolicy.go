package utils

import (
	"fmt"
	"strings"
	"unicode"
)

const PASSWORD_SYMBOLS = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

var commonPasswords = map[string]struct{}{
	"password": {}, "123456": {}, "123456789": {}, "qwerty": {}, "abc123": {},
	"password123": {}, "admin": {}, "letmein": {}, "welcome": {}, "monkey": {},
	"1234567890": {}, "password1": {}, "qwerty123": {}, "welcome123": {},
}

type PasswordValidation struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
	Strength   int      `json:"strength"`
}

// ValidatePassword checks every strength rule and reports all violations.
func ValidatePassword(password string) PasswordValidation {
	violations := []string{}
	length := len([]rune(password))
	if length < PASSWORD_MIN_LENGTH {
		violations = append(violations, fmt.Sprintf("Password must be at least %d characters long", PASSWORD_MIN_LENGTH))
	}
	if length > PASSWORD_MAX_LENGTH {
		violations = append(violations, fmt.Sprintf("Password must be no more than %d characters long", PASSWORD_MAX_LENGTH))
	}
	if !strings.ContainsFunc(password, unicode.IsUpper) {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if !strings.ContainsFunc(password, unicode.IsLower) {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if !strings.ContainsFunc(password, unicode.IsDigit) {
		violations = append(violations, "Password must contain at least one number")
	}
	if !strings.ContainsAny(password, PASSWORD_SYMBOLS) {
		violations = append(violations, "Password must contain at least one special character")
	}
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		violations = append(violations, "Password is too common. Please choose a more unique password")
	}
	if hasRepeatedRun(password, 4) {
		violations = append(violations, "Password cannot contain more than 3 consecutive identical characters")
	}
	if hasSequentialRun(password, 3) {
		violations = append(violations, "Password cannot contain sequential characters")
	}
	return PasswordValidation{
		Valid:      len(violations) == 0,
		Violations: violations,
		Strength:   PasswordStrength(password),
	}
}

func hasRepeatedRun(password string, n int) bool {
	run := 0
	var prev rune
	for i, r := range password {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}

// hasSequentialRun looks for ascending runs such as "123" or "abc",
// ignoring case.
func hasSequentialRun(password string, n int) bool {
	runes := []rune(strings.ToLower(password))
	run := 1
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		sameClass := (isASCIIDigit(prev) && isASCIIDigit(cur)) || (isASCIILower(prev) && isASCIILower(cur))
		if sameClass && cur == prev+1 {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
	}
	return false
}

func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }
func isASCIILower(r rune) bool { return r >= 'a' && r <= 'z' }

// PasswordStrength scores a password from 0 to 100.
func PasswordStrength(password string) int {
	score := 0
	length := len([]rune(password))
	if length >= 8 {
		score += 25
	}
	if length >= 12 {
		score += 15
	}
	if length >= 16 {
		score += 10
	}
	hasLetter := strings.ContainsFunc(password, unicode.IsLetter)
	hasDigit := strings.ContainsFunc(password, unicode.IsDigit)
	hasSymbol := strings.ContainsAny(password, PASSWORD_SYMBOLS)
	if strings.ContainsFunc(password, unicode.IsLower) {
		score += 10
	}
	if strings.ContainsFunc(password, unicode.IsUpper) {
		score += 10
	}
	if hasDigit {
		score += 10
	}
	if hasSymbol {
		score += 10
	}
	if length >= 12 && hasLetter && hasDigit && hasSymbol {
		score += 20
	}
	if score > 100 {
		score = 100
	}
	return score
}

// PasswordInHistory reports whether password matches any of the stored
// hashes.
func PasswordInHistory(hashes []string, password string) bool {
	for _, hash := range hashes {
		if ComparePasswords(hash, password) == nil {
			return true
		}
	}
	return false
}
