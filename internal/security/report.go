package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Report struct {
	SigningAlgorithm       string
	SigningKeyBytes        int
	VerifyKeyCount         int
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	Argon2                 PasswordReport
	RehashOnLogin          bool
	LoginThrottleActive    bool
	RefreshThrottleActive  bool
	ConcealUnknownAccounts bool
	RevokeOnPasswordChange bool
	AuditActive            bool
	Warnings               []string
}

type ReportInput struct {
	SigningAlgorithm       string
	SigningKeyBytes        int
	VerifyKeyCount         int
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	Password               PasswordReport
	RehashOnLogin          bool
	RedisAttached          bool
	EnableRefreshThrottle  bool
	MaxLoginAttempts       int
	LoginCooldownDuration  time.Duration
	ConcealUnknownAccounts bool
	RevokeOnPasswordChange bool
	AuditEnabled           bool
}

// Thresholds above which BuildReport adds a warning.
const (
	LongAccessTTL     = time.Hour
	WeakArgon2Memory  = 19 * 1024
	RecommendedKeyLen = 32
)

func BuildReport(input ReportInput) Report {
	loginThrottle := input.RedisAttached &&
		input.MaxLoginAttempts > 0 &&
		input.LoginCooldownDuration > 0

	r := Report{
		SigningAlgorithm:       input.SigningAlgorithm,
		SigningKeyBytes:        input.SigningKeyBytes,
		VerifyKeyCount:         input.VerifyKeyCount,
		AccessTTL:              input.AccessTTL,
		RefreshTTL:             input.RefreshTTL,
		Argon2:                 input.Password,
		RehashOnLogin:          input.RehashOnLogin,
		LoginThrottleActive:    loginThrottle,
		RefreshThrottleActive:  input.RedisAttached && input.EnableRefreshThrottle,
		ConcealUnknownAccounts: input.ConcealUnknownAccounts,
		RevokeOnPasswordChange: input.RevokeOnPasswordChange,
		AuditActive:            input.AuditEnabled,
	}

	if input.SigningKeyBytes < RecommendedKeyLen {
		r.Warnings = append(r.Warnings, "signing key shorter than 32 bytes")
	}
	if input.AccessTTL > LongAccessTTL {
		r.Warnings = append(r.Warnings, "access tokens live longer than one hour; claim staleness grows with it")
	}
	if input.Password.Memory < WeakArgon2Memory {
		r.Warnings = append(r.Warnings, "argon2 memory below 19 MiB")
	}
	if !loginThrottle {
		r.Warnings = append(r.Warnings, "login throttling inactive")
	}
	if !input.ConcealUnknownAccounts {
		r.Warnings = append(r.Warnings, "login distinguishes unknown accounts from wrong passwords")
	}
	return r
}
