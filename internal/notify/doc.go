// Package notify delivers job lifecycle callbacks to an external HTTP
// endpoint. Delivery is best effort: callers log failures and move on, and a
// missing endpoint yields a no-op service so call sites never branch on
// configuration.
package notify
