package audit

type EventType string

const (
	EventLoginSuccess          EventType = "LOGIN_SUCCESS"
	EventLoginFail             EventType = "LOGIN_FAIL"
	EventLoginForcedChange     EventType = "LOGIN_FORCED_CHANGE"
	EventLogin2FAPrompt        EventType = "LOGIN_2FA_PROMPT"
	EventLogin2FASuccess       EventType = "LOGIN_2FA_SUCCESS"
	EventLogin2FAFail          EventType = "LOGIN_2FA_FAIL"
	EventLogin2FALocked        EventType = "LOGIN_2FA_LOCKED"
	EventUserCreate            EventType = "USER_CREATE"
	EventPasswordResetRequest  EventType = "PASSWORD_RESET_REQUEST"
	EventPasswordReset         EventType = "PASSWORD_RESET"
	EventPasswordChange        EventType = "PASSWORD_CHANGE"
	EventPasswordRehash        EventType = "PASSWORD_REHASH"
	EventTwoFAEnable           EventType = "TWOFA_ENABLE"
	EventTwoFADisable          EventType = "TWOFA_DISABLE"
	EventBackupCodesRegenerate EventType = "BACKUP_CODES_REGENERATE"
	EventAccountDeactivate     EventType = "ACCOUNT_DEACTIVATE"
	EventAccountActivate       EventType = "ACCOUNT_ACTIVATE"
	EventAccountUnlock         EventType = "ACCOUNT_UNLOCK"
)

// Failure reasons written to the "reason" metadata key.
const (
	ReasonUserNotFound    = "user_not_found"
	ReasonAccountLocked   = "account_locked"
	ReasonAccountInactive = "account_inactive"
	ReasonInvalidPassword = "invalid_password"
	ReasonInvalidCode     = "invalid_code"
	ReasonTwoFactorLocked = "twofa_locked"
	ReasonInvalidToken    = "invalid_or_expired_token"
	ReasonPolicyViolation = "policy_violation"
	ReasonStorageFailure  = "storage_failure"
)

// Event is one entry to append to the audit trail.
type Event struct {
	Type      EventType
	AccountID uint // zero when the username did not resolve to an account
	Username  string
	Success   bool
	Metadata  map[string]any
}
