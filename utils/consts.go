package utils

import "time"

// error messages
const GENERIC_SIGNUP_ERROR = "We had some trouble signing you up. Please try again!"
const EMAIL_TAKEN_SIGNUP_ERROR = "User already exists"
const GENERIC_LOGIN_ERROR = "Invalid credentials"
const ACCOUNT_LOCKED_ERROR = "Account temporarily locked due to multiple failed login attempts."
const INVALID_MFA_CODE_ERROR = "Invalid MFA code"
const INVALID_MFA_REQUEST_ERROR = "Invalid MFA request"
const MFA_ALREADY_ENABLED_ERROR = "MFA is already enabled"
const MFA_NOT_PENDING_ERROR = "MFA setup has not been started"
const WRONG_CURRENT_PASSWORD_ERROR = "Current password is incorrect"
const WRONG_PASSWORD_ERROR = "Invalid password"
const WEAK_PASSWORD_ERROR = "Password does not meet the strength requirements"
const REUSED_PASSWORD_ERROR = "Password was used recently. Please choose a different password."
const BID_TOO_LOW_ERROR = "Bid must be higher than current bid"
const AUCTION_ENDED_ERROR = "Auction has ended"
const INSUFFICIENT_FUNDS_ERROR = "Insufficient wallet balance"
const NOT_FOUND_ERROR = "Not found"
const MISSING_TOKEN_ERROR = "No token provided"
const JWT_TOKEN_PARSING_ERROR = "Invalid token"
const JWT_TOKEN_EXPIRED_ERROR = "Token expired"
const INVALID_REQUEST_ERROR = "Invalid request"
const GENERIC_RATE_LIMIT_ERROR = "Too many requests, please try again later."
const AUTH_RATE_LIMIT_ERROR = "Too many authentication attempts, please try again later."
const BID_RATE_LIMIT_ERROR = "Too many bids, please slow down."
const SERVER_DOWN = "Internal server error"

// duplicate key errors as reported by the drivers we support
const GORM_ERR_CODE_DUPLICATE_KEY = "Error 1062"
const SQLITE_ERR_DUPLICATE_KEY = "UNIQUE constraint failed"

// lockout
const MAX_NUM_LOGIN_ATTEMPTS = 5
const LOCKOUT_DURATION = 2 * time.Hour

// MFA
const TOTP_ISSUER = "SecureBidz"
const TOTP_INTERVAL = 30 * time.Second
const TOTP_WINDOW = 2
const TOTP_SECRET_BYTES = 20
const EMAIL_CODE_DIGITS = 6
const EMAIL_CODE_DURATION = 10 * time.Minute
const NUM_BACKUP_CODES = 10
const BACKUP_CODE_LENGTH = 8
const BACKUP_CODE_HASH_ROUNDS = 10

// passwords
const PASSWORD_HASH_ROUNDS = 12
const PASSWORD_MIN_LENGTH = 8
const PASSWORD_MAX_LENGTH = 128
const PASSWORD_HISTORY_SIZE = 5

// risk scoring
const RISK_WINDOW = time.Hour
const RISK_FAILED_LOGIN_THRESHOLD = 3
const RISK_BID_THRESHOLD = 10
const RISK_SCORE_FAILED_LOGINS = 30
const RISK_SCORE_NEW_IP = 20
const RISK_SCORE_BID_FREQUENCY = 25
const RISK_SCORE_LOCATION = 15
const RISK_SUSPICIOUS_THRESHOLD = 50
const RISK_MAX_SCORE = 100

// tokens and auctions
const TOKEN_DURATION = 7 * 24 * time.Hour
const AUCTION_DURATION = 24 * time.Hour

// amounts are stored as decimal(12,2)
const MAX_AMOUNT = 1_000_000_000
