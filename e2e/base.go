// Package e2e spins up a full in-process hub (badger, bluge, router,
// gateway) and drives it through real websocket connections.
package e2e

import (
	"bytes"
	"chat-hub/auth"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/gateway"
	"chat-hub/moderation"
	"chat-hub/observability"
	"chat-hub/projection"
	"chat-hub/repositories"
	"chat-hub/runtime"
	"chat-hub/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseHubSuite struct {
	suite.Suite
	Config Config

	hub    *httptest.Server
	cancel context.CancelFunc
	db     *badger.DB
	writer *bluge.Writer
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHubSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

// SetupTest builds a fresh in-process hub for each scenario so state
// never leaks between tests.
func (s *BaseHubSuite) SetupTest() {
	req := s.Require()
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	s.db = db

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(s.T().TempDir()))
	req.NoError(err)
	s.writer = writer

	moderator, err := moderation.NewModerator([]string{"badword"}, '*')
	req.NoError(err)

	telemetry := make(chan event.Event, 64)
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(log, registry,
		repositories.NewMessageRepository(db, log),
		repositories.NewSearchRepository(writer, log),
		&moderator, domain.DefaultRooms(), 64, telemetry)
	router.Add(projection.NewTimeline())

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { _ = router.Run(ctx) }()

	tokens := auth.NewTokenManager("e2e_suite_secret_key", time.Hour)
	authService := services.NewAuthService(repositories.NewUserRepository(db), tokens)
	monitoring := observability.NewMonitoringManager(log, router.QueueStats)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	gateway.NewHandler(log, router, authService, monitoring).Register(engine)

	s.hub = httptest.NewServer(engine)
}

func (s *BaseHubSuite) TearDownTest() {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.writer != nil {
		_ = s.writer.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// StepHeader prints a colorized banner so scenario steps stand out in
// verbose test output.
func (s *BaseHubSuite) StepHeader(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Signup registers an account through the HTTP API and returns its token.
func (s *BaseHubSuite) Signup(username, password string) string {
	req := s.Require()

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	req.NoError(err)

	resp, err := http.Post(s.hub.URL+"/api/signup", "application/json", bytes.NewReader(body))
	req.NoError(err)
	defer func() { _ = resp.Body.Close() }()
	req.Equal(http.StatusCreated, resp.StatusCode)

	var payload struct {
		Token string `json:"token"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&payload))
	req.NotEmpty(payload.Token)
	return payload.Token
}

// Dial opens a websocket to the hub, optionally authenticated.
func (s *BaseHubSuite) Dial(token string) *wsClient {
	req := s.Require()

	url := strings.Replace(s.hub.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		url += "?token=" + token
	}

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	req.NoError(err)

	return &wsClient{suite: s, conn: conn}
}

// wsClient wraps one websocket connection with frame-level helpers.
type wsClient struct {
	suite *BaseHubSuite
	conn  *websocket.Conn
}

func (c *wsClient) Close() {
	_ = c.conn.Close()
}

func (c *wsClient) Send(frame map[string]any) {
	c.suite.Require().NoError(c.conn.WriteJSON(frame))
}

// WaitFor reads frames until one of the wanted kind arrives, skipping
// everything else. Fails the test on timeout.
func (c *wsClient) WaitFor(kind string) map[string]any {
	deadline := time.Now().Add(c.suite.Config.StepTimeout)

	for {
		c.suite.Require().NoError(c.conn.SetReadDeadline(deadline))
		var envelope struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		err := c.conn.ReadJSON(&envelope)
		c.suite.Require().NoError(err, "timed out waiting for %q frame", kind)

		if envelope.Event == kind {
			return envelope.Data
		}
	}
}

// ExpectSilence asserts that no frame of the given kind arrives within
// the window.
func (c *wsClient) ExpectSilence(kind string, window time.Duration) {
	deadline := time.Now().Add(window)

	for {
		_ = c.conn.SetReadDeadline(deadline)
		var envelope struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		if err := c.conn.ReadJSON(&envelope); err != nil {
			return // timeout is the expected outcome
		}
		c.suite.Require().NotEqual(kind, envelope.Event,
			"received a %q frame that should not have arrived", kind)
	}
}
