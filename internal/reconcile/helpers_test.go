package reconcile_test

import (
	"context"
	"time"

	"offtask/internal/store"
)

const (
	testTimeout = time.Second
	testTick    = 10 * time.Millisecond
)

func storeJSON(st store.Store, key string, v any) error {
	return store.SetJSON(context.Background(), st, key, v)
}
