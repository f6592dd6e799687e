package api

// UserProfile is the account profile. Only ID is guaranteed; a profile
// built right after MFA carries nothing else.
type UserProfile struct {
	ID                   string `json:"id"`
	Email                string `json:"email,omitempty"`
	Role                 string `json:"role,omitempty"`
	MFAEnabled           *bool  `json:"mfaEnabled,omitempty"`
	BackupCodesRemaining *int   `json:"backupCodesRemaining,omitempty"`
	LastBackupRotation   string `json:"lastBackupRotation,omitempty"`
	CreatedAt            string `json:"createdAt,omitempty"`
	LastLoginAt          string `json:"lastLoginAt,omitempty"`
}

// LoginResponse is the first-factor outcome.
type LoginResponse struct {
	MFARequired bool   `json:"mfaRequired"`
	UserID      string `json:"userId,omitempty"`
}

// Enrollment is the MFA enrolment material returned by registration.
type Enrollment struct {
	QRCode     string `json:"qrCode,omitempty"`
	OTPAuthURL string `json:"otpAuthUrl,omitempty"`
	Secret     string `json:"secret,omitempty"`
	UserID     string `json:"userId,omitempty"`
}

// VaultItem is a decrypted vault entry. It is never persisted locally.
type VaultItem struct {
	ID       string `json:"id"`
	SiteName string `json:"siteName"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// NewVaultItem is the create payload.
type NewVaultItem struct {
	SiteName string `json:"siteName"`
	Username string `json:"username"`
	Password string `json:"password"`
	Notes    string `json:"notes,omitempty"`
}

// VaultItemUpdate is a partial update; nil fields are left unchanged.
type VaultItemUpdate struct {
	SiteName *string `json:"siteName,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

type registerResponse struct {
	QRCode        string `json:"qrCode"`
	QR            string `json:"qr"`
	QRCodeDataURL string `json:"qrCodeDataUrl"`
	OTPAuthURL    string `json:"otpAuthUrl"`
	OTPURL        string `json:"otp_url"`
	OTPAuthSnake  string `json:"otpauth_url"`
	Secret        string `json:"secret"`
	UserID        string `json:"userId"`
	MFA           *struct {
		QR      string `json:"qr"`
		OTPAuth string `json:"otpauth"`
		Secret  string `json:"secret"`
	} `json:"mfa"`
}

func (r registerResponse) normalize() Enrollment {
	var nestedQR, nestedURL, nestedSecret string
	if r.MFA != nil {
		nestedQR, nestedURL, nestedSecret = r.MFA.QR, r.MFA.OTPAuth, r.MFA.Secret
	}
	return Enrollment{
		QRCode:     firstNonEmpty(r.QRCode, r.QR, r.QRCodeDataURL, nestedQR),
		OTPAuthURL: firstNonEmpty(r.OTPAuthURL, r.OTPURL, r.OTPAuthSnake, nestedURL),
		Secret:     firstNonEmpty(r.Secret, nestedSecret),
		UserID:     r.UserID,
	}
}

type wireVaultItem struct {
	VaultItem
	LegacyID string `json:"_id"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
