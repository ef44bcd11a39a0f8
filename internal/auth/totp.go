package auth

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// TOTPIssuer is the issuer name shown in authenticator apps
	TOTPIssuer = "SafeSpace"

	qrCodeSize             = 200
	challengeExpiry        = 5 * time.Minute
	maxAttempts            = 5
	minAttemptDelay        = 2 * time.Second
	challengeWindow        = 10 * time.Minute
	maxChallengesPerWindow = 10
)

// TOTPKey is a freshly generated TOTP secret with its provisioning URI and QR code
type TOTPKey struct {
	Secret string
	URI    string
	QRCode string // data:image/png;base64,...
}

// GenerateTOTPKey creates a new TOTP secret for the account and renders its QR code
func GenerateTOTPKey(accountName string) (TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      TOTPIssuer,
		AccountName: accountName,
	})
	if err != nil {
		return TOTPKey{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qr, err := qrCodeDataURI(key)
	if err != nil {
		return TOTPKey{}, err
	}

	return TOTPKey{
		Secret: key.Secret(),
		URI:    key.URL(),
		QRCode: qr,
	}, nil
}

func qrCodeDataURI(key *otp.Key) (string, error) {
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("failed to render QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// VerifyTOTPCode verifies a TOTP code against a secret, allowing one period of clock skew
func VerifyTOTPCode(secret, code string) bool {
	return totp.Validate(code, secret)
}
