package redis

import "strings"

const (
	defaultNamespace  = "pp"
	idempotencyPrefix = "idempotency"
	cartPrefix        = "cart"
	lockPrefix        = "lock"
)

// IdempotencyKey names the claim for one id inside scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.key(idempotencyPrefix, scope, id)
}

// CartKey names the hash holding a cart session.
func (c *Client) CartKey(sessionID string) string {
	return c.key(cartPrefix, sessionID)
}

// LockKey names a distributed job lock.
func (c *Client) LockKey(name string) string {
	return c.key(lockPrefix, name)
}

// key joins the namespace and the non-blank parts with colons.
func (c *Client) key(parts ...string) string {
	ns := strings.TrimSpace(c.namespace)
	if ns == "" {
		ns = defaultNamespace
	}
	segments := append(make([]string, 0, len(parts)+1), ns)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			segments = append(segments, p)
		}
	}
	return strings.Join(segments, ":")
}
