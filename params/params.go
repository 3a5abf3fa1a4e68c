package params

import "time"

const (
	ServerBodyLimit         = 65536 // 64 KiB
	ServerIdleTimeout       = 30 * time.Second
	ServerReadTimeout       = 10 * time.Second
	ServerWriteTimeout      = 10 * time.Second
	HealthCheckServerAddr   = ":3001"          // health check server address
	ResetTokenKeyPrefix     = "r:"             // key prefix of password reset tokens in kv storages
	TicketKeyPrefix         = "t:"             // key prefix of consumed 2fa / password change tickets
	TOTPStepKeyPrefix       = "totp:"          // key prefix of the last accepted totp step per account
	ResetTokenLength        = 6                // number of digits of a password reset token
	ResetTokenExpiration    = 15 * time.Minute // password reset token validity
	PrimaryLockThreshold    = 5                // failed password attempts before the account is locked
	PrimaryLockDuration     = 5 * time.Minute  // lock duration after too many failed password attempts
	TwoFactorLockThreshold  = 3                // failed second factor attempts before 2fa is locked
	TwoFactorLockDuration   = 5 * time.Minute  // lock duration after too many failed second factor attempts
	TwoFactorTicketLifetime = 5 * time.Minute  // lifetime of a pending 2fa / password change ticket
	TOTPPeriod              = 30               // totp time step in seconds
	TOTPSkew                = 1                // accepted totp steps before and after the current one
	TOTPIssuer              = "kguard"
	BackupCodeCount         = 10 // backup codes generated per enrollment
	BackupCodeLength        = 8  // characters per backup code
	PasswordMinLength       = 8  // minimum password length, never configurable below this
	TempPasswordLength      = 12 // default length of generated temporary passwords
	LockoutMaxCASRetries    = 8  // compare-and-set retries on concurrent account updates
	MasterKeyLength         = 48 // length of master keys generated by the keygen command
	AuditListDefaultLimit   = 50 // events printed by the audit command
)
