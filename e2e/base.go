package e2e

import (
	"bytes"
	"chat-core/auth"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

// BaseHTTPSuite talks to a running chat-core server.
type BaseHTTPSuite struct {
	suite.Suite
	Config Config
	issuer *auth.TokenIssuer
	client *http.Client
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHTTPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.Addr == "" {
		s.T().Skip("CHATCORE_ADDR is not set")
	}
	s.issuer, err = auth.NewTokenIssuer(s.Config.JWTSecret, time.Hour)
	s.Require().NoError(err, "JWT_SECRET must match the server")
	s.client = &http.Client{Timeout: 10 * time.Second}
}

// Step prints a colorized header for a scenario step.
func (s *BaseHTTPSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseHTTPSuite) Token(userID string) string {
	token, err := s.issuer.GenerateToken(userID, nil)
	s.Require().NoError(err)
	return token
}

// Call sends a JSON request as userID and decodes the response into out when
// it is not nil. It returns the status code.
func (s *BaseHTTPSuite) Call(userID, method, path string, body, out any) int {
	var payload bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&payload).Encode(body))
	}
	request, err := http.NewRequest(method, s.Config.Addr+path, &payload)
	s.Require().NoError(err)
	request.Header.Set("Authorization", "Bearer "+s.Token(userID))

	start := time.Now()
	response, err := s.client.Do(request)
	s.Require().NoError(err)
	defer response.Body.Close()
	raw, err := io.ReadAll(response.Body)
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", method, path, response.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		fmt.Fprintf(&logBuilder, "\nREQUEST:\n%s\nRESPONSE:\n%s", payload.String(), raw)
	}
	s.T().Log(logBuilder.String())

	if out != nil && len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, out))
	}
	return response.StatusCode
}

// WithRealtime opens a websocket as userID for the duration of fn.
func (s *BaseHTTPSuite) WithRealtime(name, userID string, fn func(ctx context.Context, conn *websocket.Conn)) {
	s.Step(name)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	url := strings.Replace(s.Config.Addr, "http", "ws", 1) + "/v1/realtime?access_token=" + s.Token(userID)
	conn, _, err := websocket.Dial(ctx, url, nil)
	s.Require().NoError(err, "Failed to open realtime connection")
	defer conn.CloseNow()

	fn(ctx, conn)
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
