package utils

import (
	"testing"
	"time"
)

func TestPoolConfigDefaults(t *testing.T) {
	got := PostgresPoolConfig{}.withDefaults()
	if got.MaxOpenConns != 20 {
		t.Fatalf("MaxOpenConns = %d, want 20", got.MaxOpenConns)
	}
	if got.MaxIdleConns != got.MaxOpenConns {
		t.Fatalf("MaxIdleConns = %d, want %d", got.MaxIdleConns, got.MaxOpenConns)
	}
	if got.ConnMaxLifetime != 30*time.Minute || got.ConnMaxIdleTime != 5*time.Minute {
		t.Fatalf("lifetime defaults: %+v", got)
	}
	if got.PingTimeout != 5*time.Second {
		t.Fatalf("PingTimeout = %v, want 5s", got.PingTimeout)
	}
}

func TestPoolConfigKeepsExplicitValues(t *testing.T) {
	in := PostgresPoolConfig{MaxOpenConns: 3, MaxIdleConns: 2, PingTimeout: time.Second}
	got := in.withDefaults()
	if got.MaxOpenConns != 3 || got.MaxIdleConns != 2 || got.PingTimeout != time.Second {
		t.Fatalf("explicit values overridden: %+v", got)
	}
}
