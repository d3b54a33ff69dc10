// Package session establishes the ephemeral cookie-bearing HTTP session
// the platform's undocumented UI endpoints require.
//
// The platform accepts Basic auth on its documented Table API, but the
// hidden UI-style endpoints additionally demand session cookie presence.
// Neither alone suffices, so Establish layers both: a navigation-style GET
// with Basic auth harvests the cookies, and the returned Session bundles
// the jar with the same Basic auth for the mutating call that follows.
//
// Sessions are never pooled or reused. Every executor attempt establishes
// its own — a small latency cost that removes stale-cookie, cross-operation
// leakage, and expiry-race bugs wholesale. Operations are infrequent and
// off any hot path, so the trade is a good one.
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"go.uber.org/zap"

	"snowgate/internal/client"
	"snowgate/internal/instance"
)

// navigationPath is the UI landing page requested during establishment.
// Its response body is irrelevant; only the Set-Cookie headers matter.
const navigationPath = "/navpage.do"

// Session is one ephemeral authenticated HTTP session, owned exclusively
// by a single in-flight operation attempt.
type Session struct {
	Jar           *cookiejar.Jar
	EstablishedAt time.Time

	inst instance.Instance
}

// Client builds an HTTP client that carries both the session cookies and
// the instance's Basic auth, suitable for UI-style endpoints.
func (s *Session) Client(opts ...client.Option) *client.Client {
	opts = append([]client.Option{client.WithCookieJar(s.Jar)}, opts...)
	return client.New(s.inst, opts...)
}

// Manager establishes sessions on demand.
type Manager struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a session manager. A nil logger is replaced with nop.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger, now: time.Now}
}

// Establish performs the navigation-style request against inst and returns
// a Session valid for the lifetime of one executor attempt.
//
// Establishment failure is an availability problem, not an authorization
// one: the caller maps it to a retryable outcome.
func (m *Manager) Establish(ctx context.Context, inst instance.Instance) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("session: creating cookie jar: %w", err)
	}

	c := client.New(inst, client.WithCookieJar(jar), client.WithLogger(m.logger))
	status, err := c.RawGet(ctx, navigationPath)
	if err != nil {
		return nil, fmt.Errorf("session: establishing against %s: %w", inst.Name, err)
	}
	// Redirect chains land on 200; anything else means the instance did
	// not hand out a usable session.
	if status != http.StatusOK {
		return nil, &client.Error{
			Class:      client.ClassRetryable,
			StatusCode: status,
			Err:        fmt.Errorf("session: navigation returned %d", status),
		}
	}

	m.logger.Debug("session established", zap.String("instance", inst.Name))
	return &Session{
		Jar:           jar,
		EstablishedAt: m.now(),
		inst:          inst,
	}, nil
}
