package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/xlzd/gotp"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHashRounds is the bcrypt cost used for new password hashes.
// Tests lower it; production never goes below PASSWORD_HASH_ROUNDS.
var PasswordHashRounds = PASSWORD_HASH_ROUNDS

// prehashPassword maps any password to 44 bytes, inside bcrypt's 72 byte
// input limit.
func prehashPassword(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(prehashPassword(password), PasswordHashRounds)
	return string(bytes), err
}

func ComparePasswords(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), prehashPassword(password))
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// CompareDummyPassword spends the same bcrypt work as a real comparison.
// Call it when no user matches the email.
func CompareDummyPassword(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword(prehashPassword("securebidz-timing-equalizer"), PasswordHashRounds)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, prehashPassword(password))
}

type TokenClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.StandardClaims
}

// TokenIssuer mints and checks bearer tokens. It keeps no state: validity is
// the HS256 signature plus the embedded expiry. OldSecret lets tokens signed
// before a key rotation keep working until they expire.
type TokenIssuer struct {
	Secret    []byte
	OldSecret []byte
	TTL       time.Duration
	Clock     func() time.Time
}

func (t *TokenIssuer) now() time.Time {
	if t.Clock != nil {
		return t.Clock()
	}
	return time.Now()
}

func (t *TokenIssuer) Issue(userID, email string) (string, error) {
	if len(t.Secret) == 0 {
		return "", errors.New("token secret is not configured")
	}
	ttl := t.TTL
	if ttl <= 0 {
		ttl = TOKEN_DURATION
	}
	now := t.now()
	claims := TokenClaims{
		UserID: userID,
		Email:  email,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.Secret)
}

func parseJWTToken(tokenString string, signingKey []byte) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(JWT_TOKEN_PARSING_ERROR)
		}
		return signingKey, nil
	})
	return claims, err
}

func classifyTokenError(err error) error {
	var ve *jwt.ValidationError
	if errors.As(err, &ve) {
		if ve.Errors&(jwt.ValidationErrorSignatureInvalid|jwt.ValidationErrorMalformed|jwt.ValidationErrorUnverifiable) != 0 {
			return ErrInvalidToken
		}
		if ve.Errors&jwt.ValidationErrorExpired != 0 {
			return ErrTokenExpired
		}
	}
	return ErrInvalidToken
}

func (t *TokenIssuer) Verify(tokenString string) (*TokenClaims, error) {
	claims, err := parseJWTToken(tokenString, t.Secret)
	if err != nil && len(t.OldSecret) > 0 {
		if oldClaims, oldErr := parseJWTToken(tokenString, t.OldSecret); oldErr == nil {
			claims, err = oldClaims, nil
		} else if errors.Is(classifyTokenError(oldErr), ErrTokenExpired) {
			err = oldErr
		}
	}
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewTOTPSecret returns a base32 secret drawn from crypto/rand.
func NewTOTPSecret() (string, error) {
	b := make([]byte, TOTP_SECRET_BYTES)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b), nil
}

func TOTPProvisioningURI(secret, email string) string {
	return gotp.NewDefaultTOTP(secret).ProvisioningUri(email, TOTP_ISSUER)
}

func TOTPCodeAt(secret string, at time.Time) string {
	return gotp.NewDefaultTOTP(secret).At(int(at.Unix()))
}

// VerifyTOTP accepts a code for the time step containing at, or up to
// TOTP_WINDOW steps either side of it.
func VerifyTOTP(secret, code string, at time.Time) bool {
	if secret == "" || len(code) != EMAIL_CODE_DIGITS {
		return false
	}
	totp := gotp.NewDefaultTOTP(secret)
	valid := false
	for step := -TOTP_WINDOW; step <= TOTP_WINDOW; step++ {
		expected := totp.At(int(at.Add(time.Duration(step) * TOTP_INTERVAL).Unix()))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			valid = true
		}
	}
	return valid
}

// GetVerificationCode returns a random numeric code for emailed challenges.
func GetVerificationCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < EMAIL_CODE_DIGITS; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", EMAIL_CODE_DIGITS, n.Int64()), nil
}

// HashCode digests short-lived single-use codes for storage.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

const backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateBackupCodes returns plain codes for the user and their bcrypt hashes
// for storage, index aligned.
func GenerateBackupCodes() ([]string, []string, error) {
	codes := make([]string, 0, NUM_BACKUP_CODES)
	hashes := make([]string, 0, NUM_BACKUP_CODES)
	alphabetLen := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < NUM_BACKUP_CODES; i++ {
		var sb strings.Builder
		for j := 0; j < BACKUP_CODE_LENGTH; j++ {
			n, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				return nil, nil, fmt.Errorf("generating backup code: %w", err)
			}
			sb.WriteByte(backupCodeAlphabet[n.Int64()])
		}
		code := sb.String()
		hash, err := bcrypt.GenerateFromPassword([]byte(code), BACKUP_CODE_HASH_ROUNDS)
		if err != nil {
			return nil, nil, fmt.Errorf("hashing backup code: %w", err)
		}
		codes = append(codes, code)
		hashes = append(hashes, string(hash))
	}
	return codes, hashes, nil
}

func CompareBackupCode(hash, code string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
}

func GenerateBanMessage(banExpAt, now time.Time) string {
	diff := banExpAt.Sub(now)
	timeLeft := int(diff.Round(time.Minute).Minutes())
	if timeLeft <= 1 {
		return "Please try again in 1 minute."
	}
	return fmt.Sprintf("Please try again in %d minutes.", timeLeft)
}
