package models

// RecoveryCodeCount is the number of single-use recovery codes issued on every
// provisioning call. Re-provisioning replaces the whole batch.
const RecoveryCodeCount = 8

// Credentials carries a single login attempt. Transient, never persisted.
type Credentials struct {
	Login    string
	Password string
	Remember bool
}

// LoginChallenge is the pending-login state held in the browser session
// between the password check and the one-time code. At most one challenge
// exists per session; a new BeginChallenge overwrites the previous one.
// ThrottleKey carries the login throttle bucket charged at the password step
// so it can be forgiven when the second factor completes the login.
type LoginChallenge struct {
	UserID      string `json:"user_id"`
	Remember    bool   `json:"remember"`
	ThrottleKey string `json:"throttle_key"`
}

// TwoFactorSetup is returned by provisioning for one-time display. The secret
// and recovery codes are never shown again after this response.
type TwoFactorSetup struct {
	Secret        string   `json:"secret"`
	QRCode        string   `json:"qr_code"` // PNG data URL of the otpauth:// URI
	RecoveryCodes []string `json:"recovery_codes"`
}
