package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/rbac"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("unit-test-signing-secret-0123456789")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *memory.Store
	clock  *testClock
	sink   *ChannelSink
}

func newTestEngine(t testing.TB, mutate ...func(*Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Audit.Enabled = true
	for _, m := range mutate {
		m(&cfg)
	}

	env := &testEnv{
		store: memory.New(),
		clock: &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
		sink:  NewChannelSink(256),
	}
	engine, err := New().
		WithConfig(cfg).
		WithStore(env.store).
		WithAuditSink(env.sink).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine

	if _, err := rbac.Seed(context.Background(), env.store, rbac.DefaultCatalog(), rbac.SeedOptions{Now: env.clock.Now}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return env
}

func (env *testEnv) register(t testing.TB, email, password string) store.Account {
	t.Helper()
	acc, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: "Test",
		LastName:  "User",
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return acc
}

func (env *testEnv) ledgerRow(t testing.TB, raw string) store.RefreshToken {
	t.Helper()
	row, err := env.store.RefreshTokenByHash(context.Background(), internal.HashRefreshToken(raw))
	if err != nil {
		t.Fatalf("ledger lookup: %v", err)
	}
	return row
}

func TestLoginClaimsAreRoleAndPermissionUnion(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()
	acc := env.register(t, "ada@example.com", "correct-horse-battery")
	if err := env.engine.AssignRoleToUser(ctx, acc.ID, rbac.RoleStudent); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	pair, err := env.engine.Login(ctx, "ADA@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	grants, _ := env.store.Grants(ctx, acc.ID)
	id, err := env.engine.VerifyAccessToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if strings.Join(id.Roles, ",") != strings.Join(grants.Roles, ",") {
		t.Fatalf("roles = %v, want %v", id.Roles, grants.Roles)
	}
	if strings.Join(id.Permissions, ",") != strings.Join(grants.Permissions, ",") {
		t.Fatalf("permissions = %v, want %v", id.Permissions, grants.Permissions)
	}
	if !id.HasAuthority(rbac.CourseEnroll) || !id.HasAuthority(rbac.RoleUser) {
		t.Fatalf("missing expected authorities: %v", id.Authorities())
	}
	if id.AccountID != acc.ID || id.Email != "ada@example.com" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestLoginPersistsFreshUnrevokedHash(t *testing.T) {
	env := newTestEngine(t)
	env.register(t, "ada@example.com", "correct-horse-battery")

	pair, err := env.engine.Login(context.Background(), "ada@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	row := env.ledgerRow(t, pair.RefreshToken)
	if row.Revoked || row.RevokedAt != nil {
		t.Fatalf("fresh row revoked: %+v", row)
	}
	if row.TokenHash == pair.RefreshToken || len(row.TokenHash) != 64 {
		t.Fatalf("unexpected stored hash %q", row.TokenHash)
	}
	if !pair.RefreshExpiresAt.Equal(env.clock.Now().Add(7 * 24 * time.Hour)) {
		t.Fatalf("refresh expiry = %v", pair.RefreshExpiresAt)
	}
}

func TestLoginErrors(t *testing.T) {
	env := newTestEngine(t)
	env.register(t, "ada@example.com", "correct-horse-battery")
	ctx := context.Background()

	if _, err := env.engine.Login(ctx, "nobody@example.com", "correct-horse-battery"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown account: %v", err)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := env.engine.Login(ctx, "  ", "x"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("blank email: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginFailure]; got != 3 {
		t.Fatalf("login failures = %d", got)
	}
}

func TestLoginConcealsUnknownAccounts(t *testing.T) {
	env := newTestEngine(t, func(c *Config) { c.Account.ConcealUnknownAccounts = true })
	if _, err := env.engine.Login(context.Background(), "nobody@example.com", "whatever-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestRotateRevokesPriorRow(t *testing.T) {
	env := newTestEngine(t)
	env.register(t, "ada@example.com", "correct-horse-battery")
	ctx := context.Background()

	first, err := env.engine.Login(ctx, "ada@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	env.clock.Advance(time.Minute)
	second, err := env.engine.Rotate(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation reused the secret")
	}

	prior := env.ledgerRow(t, first.RefreshToken)
	if !prior.Revoked || prior.RevokedAt == nil || !prior.RevokedAt.Equal(env.clock.Now()) {
		t.Fatalf("prior row = %+v", prior)
	}
	next := env.ledgerRow(t, second.RefreshToken)
	if next.Revoked || next.AccountID != prior.AccountID {
		t.Fatalf("successor row = %+v", next)
	}

	_, err = env.engine.Rotate(ctx, first.RefreshToken)
	if TokenReasonOf(err) != ReasonRevoked || !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("replay: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("reuse counter = %d", got)
	}
}

func TestRotateExpiredLeavesRowUntouched(t *testing.T) {
	env := newTestEngine(t)
	env.register(t, "ada@example.com", "correct-horse-battery")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "ada@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	env.clock.Advance(7*24*time.Hour + time.Second)

	_, err = env.engine.Rotate(ctx, pair.RefreshToken)
	if TokenReasonOf(err) != ReasonExpired {
		t.Fatalf("expected expired, got %v", err)
	}
	row := env.ledgerRow(t, pair.RefreshToken)
	if row.Revoked || row.RevokedAt != nil {
		t.Fatalf("expired row mutated: %+v", row)
	}
}

func TestRotateGarbageAndBlank(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	if _, err := env.engine.Rotate(ctx, "definitely-not-issued"); TokenReasonOf(err) != ReasonNotFound {
		t.Fatalf("garbage: %v", err)
	}
	if _, err := env.engine.Rotate(ctx, ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("blank: %v", err)
	}
}

func TestClaimsStalenessBoundEqualsTTL(t *testing.T) {
	env := newTestEngine(t, func(c *Config) { c.JWT.AccessTTL = 10 * time.Minute })
	env.register(t, "ada@example.com", "correct-horse-battery")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "ada@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := pair.Identity.ExpiresAt.Sub(pair.Identity.IssuedAt); got != 10*time.Minute {
		t.Fatalf("exp-iat = %v", got)
	}

	env.clock.Advance(10*time.Minute + time.Second)
	if _, err := env.engine.VerifyAccessToken(ctx, pair.AccessToken); TokenReasonOf(err) != ReasonExpired {
		t.Fatalf("expected expired access token, got %v", err)
	}
}

func TestLogoutIsIdempotentAndKeepsFirstRevocation(t *testing.T) {
	env := newTestEngine(t)
	env.register(t, "ada@example.com", "correct-horse-battery")
	ctx := context.Background()

	pair, _ := env.engine.Login(ctx, "ada@example.com", "correct-horse-battery")
	if err := env.engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	first := *env.ledgerRow(t, pair.RefreshToken).RevokedAt

	env.clock.Advance(time.Hour)
	if err := env.engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if got := *env.ledgerRow(t, pair.RefreshToken).RevokedAt; !got.Equal(first) {
		t.Fatalf("revokedAt moved from %v to %v", first, got)
	}

	if err := env.engine.Logout(ctx, "   "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("blank logout: %v", err)
	}
	if err := env.engine.Logout(ctx, "unknown"); TokenReasonOf(err) != ReasonNotFound {
		t.Fatalf("unknown logout: %v", err)
	}
}

func TestLogoutAllScopedToAccount(t *testing.T) {
	env := newTestEngine(t)
	env.register(t, "ada@example.com", "correct-horse-battery")
	env.register(t, "grace@example.com", "hopper-compiler-1952")
	ctx := context.Background()

	a1, _ := env.engine.Login(ctx, "ada@example.com", "correct-horse-battery")
	a2, _ := env.engine.Login(ctx, "ada@example.com", "correct-horse-battery")
	g1, _ := env.engine.Login(ctx, "grace@example.com", "hopper-compiler-1952")

	n, err := env.engine.LogoutAll(ctx, "ada@example.com")
	if err != nil || n != 2 {
		t.Fatalf("logout all = %d, %v", n, err)
	}
	for _, raw := range []string{a1.RefreshToken, a2.RefreshToken} {
		if !env.ledgerRow(t, raw).Revoked {
			t.Fatal("ada session survived logout all")
		}
	}
	if env.ledgerRow(t, g1.RefreshToken).Revoked {
		t.Fatal("logout all touched another account")
	}
	if _, err := env.engine.Rotate(ctx, g1.RefreshToken); err != nil {
		t.Fatalf("grace rotate: %v", err)
	}
}

func TestLogoutAllWithNoTokens(t *testing.T) {
	env := newTestEngine(t)
	env.register(t, "ada@example.com", "correct-horse-battery")

	n, err := env.engine.LogoutAll(context.Background(), "ada@example.com")
	if err != nil || n != 0 {
		t.Fatalf("logout all = %d, %v", n, err)
	}
	if _, err := env.engine.LogoutAll(context.Background(), "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown account: %v", err)
	}
}

func TestAssignRoleDuplicateLeavesRolesUnchanged(t *testing.T) {
	env := newTestEngine(t)
	acc := env.register(t, "ada@example.com", "correct-horse-battery")
	ctx := WithIdentity(context.Background(), &Identity{Email: "admin@example.com", Roles: []string{rbac.RoleAdmin}})

	if err := env.engine.AssignRoleToUser(ctx, acc.ID, rbac.RoleUser); !errors.Is(err, ErrDuplicateRole) {
		t.Fatalf("duplicate role: %v", err)
	}
	roles, _ := env.store.RoleNamesForAccount(ctx, acc.ID)
	if strings.Join(roles, ",") != rbac.RoleUser {
		t.Fatalf("roles changed: %v", roles)
	}
	if err := env.engine.AssignRoleToUser(ctx, "7b8f7c1e-0000-4000-8000-000000000000", rbac.RoleUser); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown account: %v", err)
	}
	if err := env.engine.AssignRoleToUser(ctx, acc.ID, "ROLE_WIZARD"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("unknown role: %v", err)
	}
}

func TestAssignPermissionsAllOrNothing(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.AssignPermissionsToRole(ctx, rbac.RoleStudent, []string{rbac.StudentView, rbac.CourseView})
	var dup *DuplicatePermissionError
	if !errors.As(err, &dup) || !errors.Is(err, ErrDuplicatePermission) {
		t.Fatalf("expected duplicate permission error, got %v", err)
	}
	if strings.Join(dup.Names, ",") != rbac.CourseView {
		t.Fatalf("duplicates = %v", dup.Names)
	}
	role, _ := env.store.RoleByName(ctx, rbac.RoleStudent)
	perms, _ := env.store.PermissionsForRole(ctx, role.ID)
	for _, p := range perms {
		if p.Name == rbac.StudentView {
			t.Fatal("partial assignment persisted")
		}
	}

	_, err = env.engine.AssignPermissionsToRole(ctx, rbac.RoleStudent, []string{"TELEPORT"})
	var missing *PermissionNotFoundError
	if !errors.As(err, &missing) || missing.Name != "TELEPORT" || !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected permission not found, got %v", err)
	}

	got, err := env.engine.AssignPermissionsToRole(ctx, rbac.RoleStudent, []string{rbac.StudentView})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if strings.Join(got.Added, ",") != rbac.StudentView || len(got.Permissions) != len(perms)+1 {
		t.Fatalf("assignment = %+v", got)
	}
}

func TestNewRoleVisibleAfterRotation(t *testing.T) {
	env := newTestEngine(t)
	acc := env.register(t, "ada@example.com", "correct-horse-battery")
	ctx := context.Background()

	pair, _ := env.engine.Login(ctx, "ada@example.com", "correct-horse-battery")
	if err := env.engine.AssignRoleToUser(ctx, acc.ID, rbac.RoleLecturer); err != nil {
		t.Fatalf("assign: %v", err)
	}
	stale, _ := env.engine.VerifyAccessToken(ctx, pair.AccessToken)
	if stale.HasAuthority(rbac.RoleLecturer) {
		t.Fatal("existing token gained a role without rotation")
	}
	next, err := env.engine.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if !next.Identity.HasAll(rbac.RoleLecturer, rbac.CourseCreate) {
		t.Fatalf("rotated identity = %v", next.Identity.Authorities())
	}
}

func TestRegisterAndAccountView(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()
	acc := env.register(t, " Ada@Example.com ", "correct-horse-battery")

	if _, err := env.engine.Register(ctx, RegisterRequest{Email: "ada@example.com", Password: "another-pass-1", FirstName: "A", LastName: "B"}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("duplicate register: %v", err)
	}
	if _, err := env.engine.Register(ctx, RegisterRequest{Email: "x@example.com", Password: "short", FirstName: "A", LastName: "B"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("short password: %v", err)
	}

	_, _ = env.engine.Login(ctx, "ada@example.com", "correct-horse-battery")
	p2, _ := env.engine.Login(ctx, "ada@example.com", "correct-horse-battery")
	_ = env.engine.Logout(ctx, p2.RefreshToken)

	view, err := env.engine.Account(ctx, acc.ID)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if view.Email != "ada@example.com" || view.ActiveSessions != 1 {
		t.Fatalf("view = %+v", view)
	}
	if strings.Join(view.Roles, ",") != rbac.RoleUser || len(view.Permissions) != 4 {
		t.Fatalf("grants = %v %v", view.Roles, view.Permissions)
	}

	sessions, err := env.engine.Sessions(ctx, acc.ID)
	if err != nil || len(sessions) != 2 {
		t.Fatalf("sessions = %v, %v", sessions, err)
	}
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	env := newTestEngine(t)
	acc := env.register(t, "ada@example.com", "correct-horse-battery")
	ctx := context.Background()
	pair, _ := env.engine.Login(ctx, "ada@example.com", "correct-horse-battery")

	if err := env.engine.ChangePassword(ctx, acc.ID, "wrong-old-pass", "new-secret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong old password: %v", err)
	}
	if err := env.engine.ChangePassword(ctx, acc.ID, "correct-horse-battery", "new-secret-pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := env.engine.Rotate(ctx, pair.RefreshToken); TokenReasonOf(err) != ReasonRevoked {
		t.Fatalf("old session: %v", err)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", "correct-horse-battery"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: %v", err)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", "new-secret-pass"); err != nil {
		t.Fatalf("new password: %v", err)
	}
}

func TestAuditRecordsActorAndReason(t *testing.T) {
	env := newTestEngine(t)
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	_, _ = env.engine.Rotate(ctx, "never-issued")
	env.engine.Close()

	var found bool
	for ev := range drain(env.sink) {
		if ev.EventType != auditEventRefreshInvalid {
			continue
		}
		found = true
		if ev.Success || ev.Error != string(auditErrInvalidToken) || ev.Metadata["reason"] != string(ReasonNotFound) || ev.IP != "203.0.113.9" {
			t.Fatalf("event = %+v", ev)
		}
	}
	if !found {
		t.Fatal("refresh_invalid event not emitted")
	}
}

func drain(s *ChannelSink) <-chan AuditEvent {
	out := make(chan AuditEvent, 256)
	go func() {
		defer close(out)
		for {
			select {
			case ev := <-s.Events():
				out <- ev
			default:
				return
			}
		}
	}()
	return out
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), "a@b.c", "password"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if _, err := e.VerifyAccessToken(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	e.Close()
}

func TestSecurityReportReflectsPosture(t *testing.T) {
	env := newTestEngine(t, func(c *Config) {
		c.Account.ConcealUnknownAccounts = true
	})
	report := env.engine.SecurityReport()
	if report.SigningAlgorithm != "HS256" {
		t.Fatalf("algorithm = %q", report.SigningAlgorithm)
	}
	if report.SigningKeyBytes != len("unit-test-signing-secret-0123456789") {
		t.Fatalf("key bytes = %d", report.SigningKeyBytes)
	}
	if report.LoginThrottleActive {
		t.Fatal("throttle reported active without redis")
	}
	if !report.ConcealUnknownAccounts || !report.AuditActive {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Warnings) == 0 {
		t.Fatal("expected warnings for test argon2 params and missing throttle")
	}
}
