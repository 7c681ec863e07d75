package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/florianilch/keyprovider/internal/codec"
	"github.com/florianilch/keyprovider/internal/ini"
	"github.com/florianilch/keyprovider/internal/keyprovider"
	"github.com/florianilch/keyprovider/internal/procmutex"
)

type testEnv struct {
	storeFile  string
	staticDir  string
	staticFile string
	lockDir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	// Keep a real per-user config file out of the way
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := t.TempDir()
	return &testEnv{
		storeFile:  filepath.Join(root, "data", "storedkeys.ini"),
		staticDir:  filepath.Join(root, "static.d"),
		staticFile: filepath.Join(root, "static.ini"),
		lockDir:    filepath.Join(root, "locks"),
	}
}

// run executes the CLI against the test store and returns its standard output.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	cmd := newRootCommand()
	cmd.Writer = &stdout
	cmd.ErrWriter = io.Discard

	full := append([]string{
		"keyprovider",
		"--log-level", "error",
		"--store--file", e.storeFile,
		"--store--static-dir", e.staticDir,
		"--store--static-file", e.staticFile,
		"--lock--dir", e.lockDir,
	}, args...)
	err := cmd.Run(context.Background(), full)
	return stdout.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
	return out
}

func TestStoreThenGet(t *testing.T) {
	e := newTestEnv(t)

	e.mustRun(t, "store", "--scheme-key", "K", "twitter", "sync", "consumer_key", "ck-value")
	if out := e.mustRun(t, "get", "twitter", "sync", "consumer_key"); out != "ck-value\n" {
		t.Errorf("get = %q", out)
	}

	// The stored value is obscured
	raw, err := os.ReadFile(e.storeFile)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "ck-value") {
		t.Errorf("store file holds the plain value:\n%s", raw)
	}
}

func TestStore_FromSecretSource(t *testing.T) {
	e := newTestEnv(t)
	t.Setenv("KEYPROVIDER_TEST_SECRET", "from-env")

	e.mustRun(t, "store", "-k", "K", "--secret", "env:KEYPROVIDER_TEST_SECRET", "google", "", "client_id")
	if out := e.mustRun(t, "get", "google", "other", "client_id"); out != "from-env\n" {
		t.Errorf("provider-wide fallback = %q", out)
	}
}

func TestStore_Encoded(t *testing.T) {
	e := newTestEnv(t)

	encoded := e.mustRun(t, "keygen", "-k", "K", "plain")
	e.mustRun(t, "store", "--encoded", "-k", "K", "p", "s", "n", strings.TrimSpace(encoded))
	if out := e.mustRun(t, "get", "p", "s", "n"); out != "plain\n" {
		t.Errorf("get = %q", out)
	}
}

func TestKeygenDecode(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "keygen", "--scheme-key", "K", "one", "two")
	lines := strings.Fields(out)
	if len(lines) != 2 {
		t.Fatalf("keygen printed %q", out)
	}
	want, err := codec.EncodeKey("one", codec.SchemeXOR, "K")
	if err != nil {
		t.Fatal(err)
	}
	if lines[0] != want {
		t.Errorf("keygen one = %q, want %q", lines[0], want)
	}

	if got := e.mustRun(t, append([]string{"decode", "--scheme-key", "K"}, lines...)...); got != "one\ntwo\n" {
		t.Errorf("decode = %q", got)
	}
}

func TestIniCommands(t *testing.T) {
	e := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "raw.ini")

	e.mustRun(t, "ini", "write", path, "general", "name=demo", "mode=fast")
	e.mustRun(t, "ini", "write", path, "other", "x=1")
	e.mustRun(t, "ini", "write", path, "general", "mode=slow")

	if out := e.mustRun(t, "ini", "sections", path); out != "general\nother\n" {
		t.Errorf("sections = %q", out)
	}
	if out := e.mustRun(t, "ini", "keys", path, "general"); out != "name\nmode\n" {
		t.Errorf("keys = %q", out)
	}
	if out := e.mustRun(t, "ini", "read", path, "general", "mode", "name"); out != "slow\ndemo\n" {
		t.Errorf("read = %q", out)
	}

	// Lines stay aligned with the requested keys
	out, err := e.run(t, "ini", "read", path, "general", "missing", "name", "other", "mode")
	if ExitCode(err) != ExitNotFound {
		t.Errorf("read missing: err = %v, exit %d", err, ExitCode(err))
	}
	if want := "\ndemo\n\nslow\n"; out != want {
		t.Errorf("read missing printed %q, want %q", out, want)
	}
}

func TestIniWrite_StoreFileIsLocked(t *testing.T) {
	e := newTestEnv(t)

	e.mustRun(t, "ini", "write", e.storeFile, "notes", "a=1")
	if v, found, err := ini.Read(e.storeFile, "notes", "a"); err != nil || !found || v != "1" {
		t.Errorf("Read = %q, %v, %v", v, found, err)
	}

	// Hold the store lock from another instance
	m, err := procmutex.New(e.storeFile, procmutex.WithLockDir(e.lockDir))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()
	if err := m.Lock(); err != nil {
		t.Fatal(err)
	}

	sep := string(filepath.Separator)
	alias := filepath.Dir(e.storeFile) + sep + "." + sep + filepath.Base(e.storeFile)
	for _, path := range []string{e.storeFile, alias} {
		_, err = e.run(t, "--lock--timeout", "50ms", "ini", "write", path, "notes", "a=2")
		if !errors.Is(err, procmutex.ErrTimeout) || ExitCode(err) != ExitLock {
			t.Errorf("write to %s under foreign lock: err = %v, exit %d", path, err, ExitCode(err))
		}
	}
	if v, _, _ := ini.Read(e.storeFile, "notes", "a"); v != "1" {
		t.Errorf("store file changed under a foreign lock: a=%q", v)
	}
}

func TestLockStatus(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "lock", "status")
	if !strings.Contains(out, "locked:   false") || !strings.Contains(out, "attached: false") {
		t.Errorf("status = %q", out)
	}

	m, err := procmutex.New(e.storeFile, procmutex.WithLockDir(e.lockDir))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()
	if err := m.Lock(); err != nil {
		t.Fatal(err)
	}

	out = e.mustRun(t, "lock", "status")
	if !strings.Contains(out, "locked:   true") || !strings.Contains(out, "attached: true") {
		t.Errorf("status = %q", out)
	}

	if out := e.mustRun(t, "--lock--disabled", "lock", "status"); out != "locking disabled\n" {
		t.Errorf("status without locking = %q", out)
	}
}

func TestOAuthToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("refresh_token") != "rt-1" || r.Form.Get("client_id") != "cid" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"token_type":    "Bearer",
			"refresh_token": "rt-2",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	e := newTestEnv(t)
	e.mustRun(t, "store", "-k", "K", "google", "", keyprovider.KeyClientID, "cid")
	e.mustRun(t, "store", "-k", "K", "google", "sync", keyprovider.KeyRefreshToken, "rt-1")

	if out := e.mustRun(t, "oauth", "client-id", "google", "sync"); out != "cid\n" {
		t.Errorf("client-id = %q", out)
	}
	if out := e.mustRun(t, "oauth", "token", "-k", "K", "--token-url", srv.URL, "google", "sync"); out != "at-1\n" {
		t.Errorf("token = %q", out)
	}
	if out := e.mustRun(t, "get", "google", "sync", keyprovider.KeyRefreshToken); out != "rt-2\n" {
		t.Errorf("rotated refresh token = %q", out)
	}
}

func TestCommandErrors(t *testing.T) {
	e := newTestEnv(t)
	if err := os.MkdirAll(filepath.Dir(e.storeFile), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(e.staticFile, []byte("not an ini line\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"get missing key", []string{"get", "p", "s", "nothing"}, ExitParse},
		{"get wrong arity", []string{"get", "p", "s"}, ExitInvalidArgument},
		{"store without value", []string{"store", "-k", "K", "p", "s", "n"}, ExitInvalidArgument},
		{"store unknown scheme", []string{"store", "-k", "K", "--scheme", "rot13", "p", "s", "n", "v"}, ExitCodec},
		{"store bad secret ref", []string{"store", "-k", "K", "--secret", "vault:x", "p", "s", "n"}, ExitInvalidArgument},
		{"decode garbage", []string{"decode", "-k", "K", "!!!"}, ExitCodec},
		{"ini write bad pair", []string{"ini", "write", e.storeFile, "s", "novalue"}, ExitInvalidArgument},
		{"ini sections missing file", []string{"ini", "sections", filepath.Join(e.staticDir, "none.ini")}, ExitIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.run(t, tt.args...)
			if err == nil {
				t.Fatalf("command succeeded")
			}
			if got := ExitCode(err); got != tt.want {
				t.Errorf("ExitCode = %d, want %d (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.run(t, "get", "p", "s", "nothing")
	if !errors.Is(err, keyprovider.ErrNotFound) || ExitCode(err) != ExitNotFound {
		t.Errorf("err = %v, exit %d", err, ExitCode(err))
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("boom"), ExitFailure},
		{keyprovider.ErrNotFound, ExitNotFound},
		{keyprovider.ErrInvalidArgument, ExitInvalidArgument},
		{&ini.ParseError{Line: 1, Err: ini.ErrSyntax}, ExitParse},
		{&os.PathError{Op: "open", Path: "x", Err: os.ErrPermission}, ExitIO},
		{codec.ErrMalformed, ExitCodec},
		{procmutex.ErrTimeout, ExitLock},
	}

	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
