package server

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/citybuilder/internal/config"
	"github.com/gravitas-games/citybuilder/internal/depot"
	"github.com/gravitas-games/citybuilder/internal/production"
	"github.com/gravitas-games/citybuilder/pkg/models"
)

const testDir = "testing"

func TestMain(m *testing.M) {
	_ = os.RemoveAll(testDir)
	_ = os.Mkdir(testDir, 0700)
	_ = logger.Initialise(logger.Configuration{
		Directory: testDir,
		File:      "testing.log",
		Size:      1048576,
		Count:     10,
		Console:   false,
		Levels: map[string]string{
			logger.DefaultTag: "critical",
		},
	})
	rc := m.Run()
	logger.Finalise()
	_ = os.RemoveAll(testDir)
	os.Exit(rc)
}

const testConfig = `
server:
  tick_rate: 50
  command_rate: 100
  command_burst: 100
jwt:
  issuer: login.test
depot:
  delivery_ticks: 1000
  items:
    - {key: wood}
    - {key: stone}
  global: {mode: free}
  start_items:
    - {item: wood, quantity: 100}
  storages:
    - {id: shed, owner: "7", mode: item_capped, capacity: 20}
`

// staticValidator accepts tokens naming one of its players
type staticValidator map[string]*models.Player

func (v staticValidator) ValidateToken(_ context.Context, token string) (*models.Player, error) {
	p, ok := v[token]
	if !ok {
		return nil, ErrUserNotActivated
	}
	copied := *p
	return &copied, nil
}

var testPlayers = staticValidator{
	"admin":    {ID: "1", Username: "root", Activated: 1, Permissions: models.PermissionAdmin},
	"player":   {ID: "7", Username: "alice", Activated: 1},
	"observer": {ID: "9", Username: "eve", Activated: 1, Permissions: models.PermissionObserver},
}

func testConfigParsed(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	return cfg
}

// newTestServer starts a depot and returns a server in front of it
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := testConfigParsed(t)
	bus := production.NewSimpleEventBus()
	w, err := depot.NewWorld(cfg.Depot, bus)
	require.NoError(t, err)
	d := depot.New(w, nil, cfg.Server.TickRate, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	srv := New(cfg, d, testPlayers, NewSession(bus))
	t.Cleanup(func() {
		_ = srv.Shutdown()
		cancel()
		select {
		case <-d.Done():
		case <-time.After(2 * time.Second):
			t.Error("depot did not stop")
		}
	})
	return srv
}
