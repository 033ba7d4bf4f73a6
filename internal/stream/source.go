package stream

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Source feeds a Hub from a database change transport until ctx is done.
type Source interface {
	Run(ctx context.Context) error
}

const DefaultReconnectDelay = 5 * time.Second

// sleepCtx waits d or until ctx is done, reporting whether ctx is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// replicationDSN adds replication=database to a URL or key=value DSN.
func replicationDSN(dsn string) (string, error) {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		q := u.Query()
		q.Set("replication", "database")
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	return strings.TrimSpace(dsn) + " replication=database", nil
}
