package auth

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// TOTPEngine generates secret keys and verifies time-step codes. Verification
// tolerates ±1 time step of clock drift and compares digits with the otp
// library's constant-time primitive.
type TOTPEngine struct {
	issuer string // Issuer name shown in authenticator apps
}

// NewTOTPEngine creates a new TOTP engine.
func NewTOTPEngine(issuer string) *TOTPEngine {
	return &TOTPEngine{issuer: issuer}
}

// GenerateSecret creates a new base32-encoded TOTP secret.
func (e *TOTPEngine) GenerateSecret(accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountName,
		SecretSize:  32,
		Period:      30,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return key.Secret(), nil
}

// Verify validates a 6-digit code against a secret at the current time step.
func (e *TOTPEngine) Verify(code, secret string) bool {
	return e.VerifyAt(code, secret, time.Now())
}

// VerifyAt validates a code at an arbitrary time. Used by tests to pin the
// time step.
func (e *TOTPEngine) VerifyAt(code, secret string, at time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1, // ±1 time step for clock drift
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}

	return valid
}

// ProvisioningURI builds the otpauth:// URI for authenticator apps, following
// the Key Uri Format used by Google Authenticator and compatibles.
func (e *TOTPEngine) ProvisioningURI(accountName, secret string) string {
	label := fmt.Sprintf("%s:%s", url.PathEscape(e.issuer), url.PathEscape(accountName))

	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", e.issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", "6")
	query.Set("period", "30")

	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode())
}

// QRCodeDataURL renders the provisioning URI as a PNG data URL.
func (e *TOTPEngine) QRCodeDataURL(accountName, secret string) (string, error) {
	uri := e.ProvisioningURI(accountName, secret)

	qr, err := qrcode.New(uri, qrcode.Highest)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// CodeAt computes the valid code for a secret at a given time. Test helper
// mirroring what an authenticator app would display.
func (e *TOTPEngine) CodeAt(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	return code, nil
}
