package service

import (
	"errors"
	"fmt"
	"testing"

	"Script2Video-server/models"
)

type fakeKeyStore struct {
	keys      []models.ApiKey
	listErr   error
	successes map[string]int
	failures  map[string]int
}

func newFakeKeyStore(keys ...models.ApiKey) *fakeKeyStore {
	return &fakeKeyStore{
		keys:      keys,
		successes: make(map[string]int),
		failures:  make(map[string]int),
	}
}

func (f *fakeKeyStore) ListActive(service string) ([]models.ApiKey, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.keys, nil
}

func (f *fakeKeyStore) RecordSuccess(keyID string) error {
	f.successes[keyID]++
	return nil
}

func (f *fakeKeyStore) RecordError(keyID string) error {
	f.failures[keyID]++
	return nil
}

func testKeys(n int) []models.ApiKey {
	keys := make([]models.ApiKey, 0, n)
	for i := 1; i <= n; i++ {
		keys = append(keys, models.ApiKey{
			ID:          fmt.Sprintf("key-%d", i),
			ServiceName: "video-generation",
			ApiKey:      fmt.Sprintf("secret-%d", i),
			IsActive:    true,
		})
	}
	return keys
}

func noEnv(string) string { return "" }

func TestWithRotationSuccessAfterKeyFaults(t *testing.T) {
	// 前 2 个 key 因配额失败，第 3 个成功，第 4 个不应被碰到
	store := newFakeKeyStore(testKeys(4)...)
	rot := &Rotator{Store: store, EnvLookup: noEnv}

	var used []string
	err := rot.WithRotation("video-generation", func(apiKey string) error {
		used = append(used, apiKey)
		if len(used) <= 2 {
			return errors.New("quota exceeded for this key")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if len(used) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(used))
	}
	for _, id := range []string{"key-1", "key-2"} {
		if store.failures[id] != 1 {
			t.Errorf("%s error count = %d, want 1", id, store.failures[id])
		}
		if store.successes[id] != 0 {
			t.Errorf("%s usage count = %d, want 0", id, store.successes[id])
		}
	}
	if store.successes["key-3"] != 1 {
		t.Errorf("key-3 usage count = %d, want 1", store.successes["key-3"])
	}
	if store.failures["key-3"] != 0 {
		t.Errorf("key-3 error count = %d, want 0", store.failures["key-3"])
	}
	if store.successes["key-4"] != 0 || store.failures["key-4"] != 0 {
		t.Errorf("key-4 should be untouched, got usage=%d errors=%d", store.successes["key-4"], store.failures["key-4"])
	}
}

func TestWithRotationNonKeyFaultStopsImmediately(t *testing.T) {
	store := newFakeKeyStore(testKeys(3)...)
	rot := &Rotator{Store: store, EnvLookup: noEnv}

	opErr := errors.New("connection refused")
	attempts := 0
	err := rot.WithRotation("video-generation", func(apiKey string) error {
		attempts++
		return opErr
	})

	// 原始错误原样上抛，不包装
	if !errors.Is(err, opErr) {
		t.Fatalf("expected original error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	if store.failures["key-1"] != 1 {
		t.Errorf("key-1 error count = %d, want 1", store.failures["key-1"])
	}
	if store.failures["key-2"] != 0 || store.failures["key-3"] != 0 {
		t.Errorf("later keys should be untouched")
	}
}

func TestWithRotationAllKeysExhausted(t *testing.T) {
	store := newFakeKeyStore(testKeys(3)...)
	rot := &Rotator{Store: store, EnvLookup: noEnv}

	err := rot.WithRotation("video-generation", func(apiKey string) error {
		return fmt.Errorf("401 unauthorized: %s", apiKey)
	})

	var exhausted *ErrAllKeysExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ErrAllKeysExhausted, got %v", err)
	}
	if exhausted.Service != "video-generation" {
		t.Errorf("service = %s", exhausted.Service)
	}
	if len(exhausted.Attempts) != 3 {
		t.Fatalf("expected 3 attempts recorded, got %d", len(exhausted.Attempts))
	}
	if exhausted.Attempts[0].KeyLabel != "#1" || exhausted.Attempts[2].KeyLabel != "#3" {
		t.Errorf("attempt labels wrong: %+v", exhausted.Attempts)
	}
	for _, id := range []string{"key-1", "key-2", "key-3"} {
		if store.failures[id] != 1 {
			t.Errorf("%s error count = %d, want 1", id, store.failures[id])
		}
	}
}

func TestWithRotationNoKeysAvailable(t *testing.T) {
	store := newFakeKeyStore()
	rot := &Rotator{Store: store, EnvLookup: noEnv}

	err := rot.WithRotation("video-render", func(apiKey string) error {
		t.Fatal("operation should not run")
		return nil
	})

	var noKeys *ErrNoKeysAvailable
	if !errors.As(err, &noKeys) {
		t.Fatalf("expected ErrNoKeysAvailable, got %v", err)
	}
	if noKeys.Service != "video-render" {
		t.Errorf("service = %s", noKeys.Service)
	}
}

func TestWithRotationEnvFallback(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeKeyStore
	}{
		{"库为空", newFakeKeyStore()},
		{"库不可用", &fakeKeyStore{listErr: errors.New("db down"), successes: map[string]int{}, failures: map[string]int{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rot := &Rotator{Store: tt.store, EnvLookup: func(name string) string {
				if name != "VIDEO_GENERATION_API_KEY" {
					t.Errorf("env name = %s", name)
				}
				return "env-secret"
			}}

			var got string
			err := rot.WithRotation("video-generation", func(apiKey string) error {
				got = apiKey
				return nil
			})
			if err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if got != "env-secret" {
				t.Errorf("apiKey = %s, want env-secret", got)
			}
			// 环境变量兜底 key 不更新计数器
			if len(tt.store.successes) != 0 || len(tt.store.failures) != 0 {
				t.Errorf("env key must not touch counters: %v %v", tt.store.successes, tt.store.failures)
			}
		})
	}
}

func TestWithRotationEnvKeyFailure(t *testing.T) {
	store := newFakeKeyStore()
	rot := &Rotator{Store: store, EnvLookup: func(string) string { return "env-secret" }}

	err := rot.WithRotation("video-generation", func(apiKey string) error {
		return errors.New("quota exceeded")
	})

	var exhausted *ErrAllKeysExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ErrAllKeysExhausted, got %v", err)
	}
	if exhausted.Attempts[0].KeyLabel != "ENV" {
		t.Errorf("label = %s, want ENV", exhausted.Attempts[0].KeyLabel)
	}
	if len(store.failures) != 0 {
		t.Errorf("env key must not touch counters")
	}
}

func TestIsKeyFault(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"401 Unauthorized", true},
		{"Invalid API key provided", true},
		{"quota exceeded for project", true},
		{"Rate Limit reached, retry later", true},
		{"insufficient credits", true},
		{"token has EXPIRED", true},
		{"authentication required", true},
		{"403 Forbidden", true},
		{"connection refused", false},
		{"missing field prompt", false},
		{"internal server error", false},
		{"timeout waiting for response", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := IsKeyFault(errors.New(tt.msg)); got != tt.want {
				t.Errorf("IsKeyFault(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
	if IsKeyFault(nil) {
		t.Error("IsKeyFault(nil) should be false")
	}
}
