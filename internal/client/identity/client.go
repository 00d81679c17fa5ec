// Package identity is the client-side binding to the HuddleUp identity API.
// The verification poller and the consistency monitor go through it; both
// care about a very small slice of the API surface.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/huddleup/authsync/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Session is the client-side view of the current session.
type Session struct {
	SessionID string
	User      User
}

// User carries the fields the wait flow inspects.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
}

// EmailConfirmed reports whether the server has stamped the confirmation.
func (u User) EmailConfirmed() bool {
	return u.EmailConfirmedAt != nil && !u.EmailConfirmedAt.IsZero()
}

// Profile is the client-side view of the caller's profile.
type Profile struct {
	ProfileID string
	Complete  bool
}

// Client talks to the identity API. Token state is internal and guarded; the
// poller, the monitor and the UI all share one Client.
type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// SetTokens installs session credentials, e.g. after registration or login.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
}

func (c *Client) clearTokens() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.refreshToken = ""
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// HasSession reports whether credentials are installed at all.
func (c *Client) HasSession() bool {
	return c.token() != ""
}

type wireSession struct {
	SessionID string `json:"id"`
}

type authEnvelope struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	Session      *wireSession `json:"session"`
	User         *User        `json:"user"`
	Error        string       `json:"error"`
}

type sessionEnvelope struct {
	Session *wireSession `json:"session"`
	User    *User        `json:"user"`
	Error   string       `json:"error"`
}

type profileEnvelope struct {
	Profile *struct {
		ProfileID string `json:"id"`
	} `json:"profile"`
	Complete bool   `json:"complete"`
	Error    string `json:"error"`
}

// RegisterRequest mirrors the account creation payload.
type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Register creates an account and installs the issued session tokens.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	var env authEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/users", req, &env); err != nil {
		return nil, err
	}
	c.SetTokens(env.AccessToken, env.RefreshToken)
	return sessionFromEnvelope(env.Session, env.User)
}

// Login authenticates and installs the issued session tokens.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	body := map[string]string{"username": username, "password": password}
	var env authEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/login", body, &env); err != nil {
		return nil, err
	}
	c.SetTokens(env.AccessToken, env.RefreshToken)
	return sessionFromEnvelope(env.Session, env.User)
}

// CurrentSession fetches the live session with its user. Absent credentials
// and a server-side 401 both collapse to domain.ErrNoSession: from the
// poller's point of view "not signed in yet" is one condition, however it
// manifests.
func (c *Client) CurrentSession(ctx context.Context) (*Session, error) {
	if !c.HasSession() {
		return nil, domain.ErrNoSession
	}
	var env sessionEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, &env); err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			return nil, domain.ErrNoSession
		}
		return nil, err
	}
	return sessionFromEnvelope(env.Session, env.User)
}

// ResendConfirmation asks the server to re-send the confirmation email. It
// is a public endpoint; only the address is needed.
func (c *Client) ResendConfirmation(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.do(ctx, http.MethodPost, "/v1/confirm-email/resend", body, nil)
}

// SignOut revokes the session server-side and drops local credentials. Local
// credentials are dropped even if the server call fails; a client that asked
// to sign out must end up signed out.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/v1/sessions/logout", nil, nil)
	if err != nil && statusOf(err) != http.StatusUnauthorized {
		return err
	}
	// A 401 means the session is already gone; dropping the local
	// credentials is the right outcome either way.
	c.clearTokens()
	return nil
}

// Snapshot fetches the server's authoritative view of the auth state.
func (c *Client) Snapshot(ctx context.Context) (domain.AuthSnapshot, error) {
	var snap domain.AuthSnapshot
	if err := c.do(ctx, http.MethodGet, "/v1/auth/snapshot", nil, &snap); err != nil {
		return domain.AuthSnapshot{}, err
	}
	return snap, nil
}

// CurrentProfile fetches the caller's profile completeness, which decides
// the post-verification destination.
func (c *Client) CurrentProfile(ctx context.Context) (*Profile, error) {
	var env profileEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/profiles/me", nil, &env); err != nil {
		return nil, err
	}
	p := &Profile{Complete: env.Complete}
	if env.Profile != nil {
		p.ProfileID = env.Profile.ProfileID
	}
	return p, nil
}

// apiError carries the HTTP status alongside the server's error message.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("identity api: %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("identity api: %d", e.Status)
}

// Unwrap maps the status to the matching domain sentinel so callers can use
// errors.Is against the same vocabulary the server services use.
func (e *apiError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrBadRequest
	default:
		return nil
	}
}

func statusOf(err error) int {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var env MessagePayload
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &apiError{Status: resp.StatusCode, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// MessagePayload is the server's generic error/message wrapper.
type MessagePayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func sessionFromEnvelope(ws *wireSession, u *User) (*Session, error) {
	if ws == nil || u == nil {
		return nil, fmt.Errorf("identity api: malformed session payload")
	}
	return &Session{SessionID: ws.SessionID, User: *u}, nil
}
