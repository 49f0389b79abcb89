package authapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Auditor records auth events into the auth_audit table, best-effort: a
// failed insert is logged and swallowed, never surfaced to the caller.
// A nil Auditor drops everything, which is the dev-mode behavior.
type Auditor struct {
	log    *slog.Logger
	pool   *pgxpool.Pool
	schema string
}

// NewAuditor constructs an Auditor over the given pool and schema.
func NewAuditor(log *slog.Logger, pool *pgxpool.Pool, schema string) *Auditor {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(schema) == "" {
		schema = "bazaar"
	}
	return &Auditor{log: log, pool: pool, schema: schema}
}

func (a *Auditor) record(ctx context.Context, action string, userID *string, ip net.IP, ua string, meta map[string]any) {
	if a == nil || a.pool == nil {
		return
	}

	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	var ipVal any
	if ip != nil {
		ipVal = ip.String()
	}

	var metaVal *string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO "`+a.schema+`".auth_audit (
			user_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, now(), $3, $4, $5::jsonb)
	`, userID, action, ipVal, trimOrNil(ua), metaVal)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func (a *Auditor) registerSuccess(ctx context.Context, userID string, ip net.IP, ua string) {
	a.record(ctx, "auth.register.success", &userID, ip, ua, nil)
}

func (a *Auditor) loginSuccess(ctx context.Context, userID string, ip net.IP, ua string, identifier string) {
	a.record(ctx, "auth.login.success", &userID, ip, ua, map[string]any{
		"identifier": identifier,
	})
}

func (a *Auditor) loginFailed(ctx context.Context, ip net.IP, ua string, identifier string) {
	a.record(ctx, "auth.login.failed", nil, ip, ua, map[string]any{
		"identifier": identifier,
	})
}

func (a *Auditor) logout(ctx context.Context, userID *string, ip net.IP, ua string) {
	a.record(ctx, "auth.logout", userID, ip, ua, nil)
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
