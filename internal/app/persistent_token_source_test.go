package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/oauth2"
)

type memoryStore struct {
	mu      sync.Mutex
	value   string
	writes  []string
	readErr error
	failing bool
}

func (m *memoryStore) Read(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return "", m.readErr
	}
	return m.value, nil
}

func (m *memoryStore) Write(ctx context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("disk full")
	}
	m.value = value
	m.writes = append(m.writes, value)
	return nil
}

func (m *memoryStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// rotatingSource hands out tokens carrying the given refresh tokens in turn.
type rotatingSource struct {
	mu     sync.Mutex
	tokens []string
}

func (r *rotatingSource) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt := r.tokens[0]
	if len(r.tokens) > 1 {
		r.tokens = r.tokens[1:]
	}
	return &oauth2.Token{AccessToken: "at", RefreshToken: rt}, nil
}

func TestNewPersistentTokenSource_RequiresArguments(t *testing.T) {
	factory := func(string) oauth2.TokenSource { return nil }
	if _, err := NewPersistentTokenSource(nil, &memoryStore{}); err == nil {
		t.Errorf("accepted nil factory")
	}
	if _, err := NewPersistentTokenSource(factory, nil); err == nil {
		t.Errorf("accepted nil store")
	}
}

func TestPersistentTokenSource_ReadsStoredTokenLazily(t *testing.T) {
	store := &memoryStore{value: "rt-0"}
	var got []string
	factory := func(rt string) oauth2.TokenSource {
		got = append(got, rt)
		return &rotatingSource{tokens: []string{"rt-0"}}
	}

	ts, err := NewPersistentTokenSource(factory, store)
	if err != nil {
		t.Fatalf("NewPersistentTokenSource failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("factory called before Token")
	}

	for range 3 {
		if _, err := ts.Token(); err != nil {
			t.Fatalf("Token failed: %v", err)
		}
	}
	if len(got) != 1 || got[0] != "rt-0" {
		t.Errorf("factory calls = %v, want [rt-0]", got)
	}
	if n := store.writeCount(); n != 0 {
		t.Errorf("unchanged refresh token written %d times", n)
	}
}

func TestPersistentTokenSource_PersistsRotation(t *testing.T) {
	store := &memoryStore{value: "rt-0"}
	source := &rotatingSource{tokens: []string{"rt-1", "rt-1", "rt-2"}}
	ts, err := NewPersistentTokenSource(func(string) oauth2.TokenSource { return source }, store)
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		if _, err := ts.Token(); err != nil {
			t.Fatalf("Token failed: %v", err)
		}
	}

	if len(store.writes) != 2 || store.writes[0] != "rt-1" || store.writes[1] != "rt-2" {
		t.Errorf("writes = %v, want [rt-1 rt-2]", store.writes)
	}
}

func TestPersistentTokenSource_WriteFailureIsRetried(t *testing.T) {
	store := &memoryStore{value: "rt-0", failing: true}
	source := &rotatingSource{tokens: []string{"rt-1"}}
	ts, err := NewPersistentTokenSource(func(string) oauth2.TokenSource { return source }, store)
	if err != nil {
		t.Fatal(err)
	}

	token, err := ts.Token()
	if err != nil {
		t.Fatalf("Token failed although only persisting failed: %v", err)
	}
	if token.AccessToken != "at" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}

	store.mu.Lock()
	store.failing = false
	store.mu.Unlock()

	if _, err := ts.Token(); err != nil {
		t.Fatal(err)
	}
	if store.value != "rt-1" {
		t.Errorf("stored value = %q, want rt-1", store.value)
	}
}

func TestPersistentTokenSource_ReadError(t *testing.T) {
	readErr := errors.New("no such key")
	store := &memoryStore{readErr: readErr}
	ts, err := NewPersistentTokenSource(func(string) oauth2.TokenSource { return &rotatingSource{} }, store)
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if _, err := ts.Token(); !errors.Is(err, readErr) {
			t.Errorf("Token error = %v, want %v", err, readErr)
		}
	}
}
