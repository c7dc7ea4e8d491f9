package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/internal/security"
)

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport summarises the effective security posture of an engine.
// It never carries key material.
type SecurityReport struct {
	SigningAlgorithm       string
	SigningKeyBytes        int
	VerifyKeyCount         int
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	Argon2                 PasswordConfigReport
	RehashOnLogin          bool
	LoginThrottleActive    bool
	RefreshThrottleActive  bool
	ConcealUnknownAccounts bool
	RevokeOnPasswordChange bool
	AuditActive            bool
	Warnings               []string
}

// SecurityReport summarizes the engine's security posture for startup logs.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	r := security.BuildReport(security.ReportInput{
		SigningAlgorithm: c.JWT.Algorithm,
		SigningKeyBytes:  len(c.JWT.Secret),
		VerifyKeyCount:   len(c.JWT.VerifyKeys),
		AccessTTL:        c.JWT.AccessTTL,
		RefreshTTL:       c.Refresh.TTL,
		Password: security.PasswordReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		RehashOnLogin:          c.Password.RehashOnLogin,
		RedisAttached:          e.rateLimiter != nil,
		EnableRefreshThrottle:  c.Security.EnableRefreshThrottle,
		MaxLoginAttempts:       c.Security.MaxLoginAttempts,
		LoginCooldownDuration:  c.Security.LoginCooldownDuration,
		ConcealUnknownAccounts: c.Account.ConcealUnknownAccounts,
		RevokeOnPasswordChange: c.Account.RevokeSessionsOnPasswordChange,
		AuditEnabled:           c.Audit.Enabled,
	})

	return SecurityReport{
		SigningAlgorithm:       r.SigningAlgorithm,
		SigningKeyBytes:        r.SigningKeyBytes,
		VerifyKeyCount:         r.VerifyKeyCount,
		AccessTTL:              r.AccessTTL,
		RefreshTTL:             r.RefreshTTL,
		Argon2:                 PasswordConfigReport(r.Argon2),
		RehashOnLogin:          r.RehashOnLogin,
		LoginThrottleActive:    r.LoginThrottleActive,
		RefreshThrottleActive:  r.RefreshThrottleActive,
		ConcealUnknownAccounts: r.ConcealUnknownAccounts,
		RevokeOnPasswordChange: r.RevokeOnPasswordChange,
		AuditActive:            r.AuditActive,
		Warnings:               r.Warnings,
	}
}
