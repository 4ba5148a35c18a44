package pkg

import (
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/client"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/protocol"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/server"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/user"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/watcher"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/watcher/watchertest"
)

func checkOpenSSL() error {
	cmd := exec.Command("openssl", "version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("OpenSSL not available %w", err)
	}

	return nil
}

func genTlsFiles(dir string) (key string, crt string, err error) {
	key = filepath.Join(dir, "server.key")
	crt = filepath.Join(dir, "server.crt")

	genKeyCmd := exec.Command("openssl", "genrsa", "-out", key, "2048")
	if out, err := genKeyCmd.CombinedOutput(); err != nil {
		return "", "", fmt.Errorf("failed to generate private key: %w, output: %s", err, out)
	}

	genCrtCmd := exec.Command("openssl", "req", "-new", "-x509", "-key", key,
		"-out", crt, "-days", "1", "-subj", "/CN=localhost")
	if output, err := genCrtCmd.CombinedOutput(); err != nil {
		return "", "", fmt.Errorf("failed to generate certificate: %w, output: %s", err, output)
	}

	return key, crt, nil
}

func genUsers(t *testing.T, creds ...user.Credential) *user.Manager {
	t.Helper()
	um, err := user.NewManager(filepath.Join(t.TempDir(), "pw.txt"), user.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	for _, c := range creds {
		require.NoError(t, um.Add(c))
	}
	return um
}

type relay struct {
	svc     *watchertest.Service
	monitor *watcher.Monitor
	server  *server.Server
	done    chan error
}

func startRelay(t *testing.T, tlsCfg *server.ServerTLS, um *user.Manager) *relay {
	t.Helper()
	lg := log.New(os.Stdout, "integration --> ", log.Ldate|log.Lmicroseconds)

	r := &relay{
		svc:    watchertest.NewService(),
		server: server.NewServer("127.0.0.1:0", tlsCfg, um, lg),
		done:   make(chan error, 1),
	}
	require.NoError(t, r.server.Listen())
	go func() { r.done <- r.server.Run() }()

	r.monitor = watcher.NewMonitor(r.svc, []string{"/data"},
		watcher.WithCallbackFunction(r.server.EventHook("data")),
		watcher.WithInvalidation(&watcher.Invalidation{}),
		watcher.WithLogger(lg))
	r.monitor.Start()
	require.True(t, r.monitor.IsActive())
	return r
}

func (r *relay) stop(t *testing.T) {
	r.monitor.Stop()
	require.NoError(t, r.server.Exit())
	require.NoError(t, <-r.done)
}

func tail(c *client.Client) (<-chan protocol.EventPayload, <-chan error) {
	events := make(chan protocol.EventPayload, 16)
	done := make(chan error, 1)
	go func() { done <- c.Run(func(e protocol.EventPayload) { events <- e }) }()
	return events, done
}

func TestIntegration(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := startRelay(t, nil, nil)
	c := client.NewClient(r.server.Addr().String(), "", "", "/data/sub", nil, nil)
	events, done := tail(c)

	require.Eventually(t, func() bool { return r.server.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	r.svc.Last().Emit(
		watchertest.Rec(1, "/data/other", model.ItemCreated|model.ItemIsFile),
		watchertest.Rec(2, "/data/sub/x", model.ItemCreated|model.ItemIsFile),
		watchertest.Rec(3, "/data/sub", model.MustScanSubDirs),
	)

	select {
	case e := <-events:
		assert.Equal(t, "data", e.Monitor)
		assert.Equal(t, uint64(2), e.ID)
		assert.Equal(t, "/data/sub/x", e.Path)
		assert.Equal(t, []string{"created"}, e.Actions)
	case <-time.After(5 * time.Second):
		t.Fatal("event not relayed")
	}

	require.NoError(t, c.Exit())
	require.NoError(t, <-done)
	require.Eventually(t, func() bool { return r.server.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, events)

	r.stop(t)
}

func TestIntegrationWithTLS(t *testing.T) {
	if err := checkOpenSSL(); err != nil {
		t.Skip("Skipping TLS test: ", err)
	}
	defer goleak.VerifyNone(t)

	key, crt, err := genTlsFiles(t.TempDir())
	require.NoError(t, err, "failed to generate TLS files")

	r := startRelay(t, &server.ServerTLS{Key: key, Cert: crt}, nil)
	c := client.NewClient(r.server.Addr().String(), "", "", "", &tls.Config{InsecureSkipVerify: true}, nil)
	events, done := tail(c)

	require.Eventually(t, func() bool { return r.server.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	r.svc.Last().Emit(watchertest.Rec(5, "/data/a", model.ItemRemoved|model.ItemIsFile))

	select {
	case e := <-events:
		assert.Equal(t, "/data/a", e.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("event not relayed over tls")
	}

	// the server exiting ends the client cleanly
	r.stop(t)
	require.NoError(t, <-done)
}

func TestIntegrationWithPW(t *testing.T) {
	defer goleak.VerifyNone(t)

	um := genUsers(t, user.Credential{Username: "user", Password: "user"})
	r := startRelay(t, nil, um)
	address := r.server.Addr().String()

	bad := client.NewClient(address, "user", "wrong", "", nil, nil)
	_, badDone := tail(bad)
	assert.ErrorIs(t, <-badDone, client.ErrClientAuthenticationFailed)

	good := client.NewClient(address, "user", "user", "", nil, nil)
	events, done := tail(good)
	require.Eventually(t, func() bool { return r.server.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	// one session per user
	second := client.NewClient(address, "user", "user", "", nil, nil)
	_, secondDone := tail(second)
	assert.ErrorIs(t, <-secondDone, client.ErrClientAuthenticationFailed)

	r.svc.Last().Emit(watchertest.Rec(9, "/data/b", model.ItemModified|model.ItemIsFile))
	select {
	case e := <-events:
		assert.Equal(t, "/data/b", e.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("event not relayed to authenticated client")
	}

	require.NoError(t, good.Exit())
	require.NoError(t, <-done)
	require.Eventually(t, func() bool {
		_, ok := um.Session("user")
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	r.stop(t)
}
