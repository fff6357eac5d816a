// Package calendar implements one-way (local to provider) mirroring of
// meeting tasks to Microsoft Calendar, together with the credential
// lifecycle that makes it possible: PKCE connect, probe-gated enable,
// push sync through the sync function, and forced disconnect when the
// provider rejects the stored refresh token.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// ProfileStore is the slice of persistence holding the refresh credential.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (domain.UserProfile, error)
	SetRefreshToken(ctx context.Context, userID, token string) error
}

// IntegrationStore persists the per-provider sync settings record.
type IntegrationStore interface {
	GetIntegration(ctx context.Context, userID, provider string) (domain.IntegrationSettings, error)
	UpsertIntegration(ctx context.Context, settings domain.IntegrationSettings) error
}

// Config carries the provider endpoints and app registration values.
type Config struct {
	ClientID     string
	AuthorizeURL string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
	// SyncFunctionURL is the serverless intermediary performing the
	// actual Graph calls with the user's refresh token.
	SyncFunctionURL string
}

// Client drives the sync state machine. It holds no per-user state; all
// of it lives on the profile and integration rows.
type Client struct {
	cfg          Config
	http         *http.Client
	profiles     ProfileStore
	integrations IntegrationStore
	states       StateStore
	logger       *log.Logger
	now          func() time.Time
}

// New creates a calendar sync client.
func New(cfg Config, httpClient *http.Client, profiles ProfileStore, integrations IntegrationStore, states StateStore, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.New()
	}
	return &Client{
		cfg:          cfg,
		http:         httpClient,
		profiles:     profiles,
		integrations: integrations,
		states:       states,
		logger:       logger,
		now:          time.Now,
	}
}

// Authorization is the first leg of the connect handshake.
type Authorization struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// BeginConnect builds the provider authorize URL with a fresh PKCE
// challenge. The verifier stays server-side, keyed by the state nonce,
// until the redirect leg returns.
func (c *Client) BeginConnect(ctx context.Context, userID string) (Authorization, error) {
	verifier, err := newVerifier()
	if err != nil {
		return Authorization{}, err
	}
	state := uuid.NewString()
	if err := c.states.PutVerifier(ctx, state, verifier); err != nil {
		return Authorization{}, &SyncError{Op: "store verifier", Err: err}
	}

	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("response_mode", "query")
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("code_challenge", challengeS256(verifier))
	q.Set("code_challenge_method", "S256")

	return Authorization{URL: c.cfg.AuthorizeURL + "?" + q.Encode(), State: state}, nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// CompleteConnect finishes the handshake: it exchanges the authorization
// code with the held verifier, stores the refresh credential, and marks
// the integration active with sync still disabled. Connect never enables
// sync by itself.
func (c *Client) CompleteConnect(ctx context.Context, userID, code, state string) error {
	verifier, err := c.states.TakeVerifier(ctx, state)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("code_verifier", verifier)
	form.Set("scope", strings.Join(c.cfg.Scopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return &SyncError{Op: "token exchange", Err: err}
	}
	defer resp.Body.Close()

	var token tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&token); err != nil {
		return &SyncError{Op: "token exchange", Err: err}
	}
	if resp.StatusCode != http.StatusOK || token.Error != "" {
		return &SyncError{Op: "token exchange", Err: fmt.Errorf("%s: %s", token.Error, token.ErrorDescription)}
	}
	if token.RefreshToken == "" {
		return &SyncError{Op: "token exchange", Err: errors.New("provider returned no refresh token")}
	}

	if err := c.profiles.SetRefreshToken(ctx, userID, token.RefreshToken); err != nil {
		return err
	}

	settings, err := c.currentSettings(ctx, userID)
	if err != nil {
		return err
	}
	settings.IsActive = true
	settings.SyncEnabled = false
	return c.integrations.UpsertIntegration(ctx, settings)
}

// EnableSync flips the toggle on, but only after a connectivity probe
// proves the stored refresh credential still works. On a rejected
// credential the client force-disconnects and reports the expiry; the
// toggle is never left in the requested state.
func (c *Client) EnableSync(ctx context.Context, userID string) error {
	profile, err := c.profiles.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if !profile.Connected() {
		return ErrNotConnected
	}

	if err := c.invokeSyncFunction(ctx, userID, "probe"); err != nil {
		if errors.Is(err, ErrConnectionExpired) {
			if ferr := c.forceDisconnect(ctx, userID); ferr != nil {
				c.logger.WithError(ferr).Errorf("forced disconnect for user %s", userID)
			}
			return ErrConnectionExpired
		}
		return err
	}

	settings, err := c.currentSettings(ctx, userID)
	if err != nil {
		return err
	}
	settings.IsActive = true
	settings.SyncEnabled = true
	return c.integrations.UpsertIntegration(ctx, settings)
}

// DisableSync flips the toggle off. Idempotent: disabling an already
// disabled (or never configured) integration succeeds.
func (c *Client) DisableSync(ctx context.Context, userID string) error {
	settings, err := c.integrations.GetIntegration(ctx, userID, domain.ProviderMicrosoftCalendar)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	settings.SyncEnabled = false
	return c.integrations.UpsertIntegration(ctx, settings)
}

// SyncResult is the success payload of a push.
type SyncResult struct {
	EventsPushed int `json:"eventsPushed"`
}

// Sync pushes local meeting state outward. The attempt outcome is
// recorded on the integration row whether it succeeds or fails, so the
// UI can always show staleness.
func (c *Client) Sync(ctx context.Context, userID string) (SyncResult, error) {
	settings, err := c.integrations.GetIntegration(ctx, userID, domain.ProviderMicrosoftCalendar)
	if err != nil {
		if isNotFound(err) {
			return SyncResult{}, ErrSyncDisabled
		}
		return SyncResult{}, err
	}
	if !settings.SyncEnabled {
		return SyncResult{}, ErrSyncDisabled
	}

	result, syncErr := c.push(ctx, userID)

	settings.LastSyncTime = c.now().UTC()
	if syncErr != nil {
		settings.LastSyncStatus = domain.SyncStatusError
	} else {
		settings.LastSyncStatus = domain.SyncStatusSuccess
	}
	if err := c.integrations.UpsertIntegration(ctx, settings); err != nil {
		c.logger.WithError(err).Errorf("record sync outcome for user %s", userID)
	}

	if errors.Is(syncErr, ErrConnectionExpired) {
		if ferr := c.forceDisconnect(ctx, userID); ferr != nil {
			c.logger.WithError(ferr).Errorf("forced disconnect for user %s", userID)
		}
		return SyncResult{}, ErrConnectionExpired
	}
	return result, syncErr
}

// Disconnect is the user-initiated teardown: disable sync, then clear
// the credential. Either both steps land or the caller gets an error and
// no partial-disconnect state is persisted.
func (c *Client) Disconnect(ctx context.Context, userID string) error {
	settings, err := c.currentSettings(ctx, userID)
	if err != nil {
		return err
	}
	prior := settings
	settings.SyncEnabled = false
	settings.IsActive = false
	if err := c.integrations.UpsertIntegration(ctx, settings); err != nil {
		return &SyncError{Op: "disconnect", Err: err}
	}
	if err := c.profiles.SetRefreshToken(ctx, userID, ""); err != nil {
		if rerr := c.integrations.UpsertIntegration(ctx, prior); rerr != nil {
			c.logger.WithError(rerr).Errorf("restore integration for user %s", userID)
		}
		return &SyncError{Op: "disconnect", Err: err}
	}
	return nil
}

// Status reports the connection and sync state for the UI.
type Status struct {
	Connected   bool                       `json:"connected"`
	Integration domain.IntegrationSettings `json:"integration"`
}

// Status returns the current state of the integration.
func (c *Client) Status(ctx context.Context, userID string) (Status, error) {
	profile, err := c.profiles.GetProfile(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	settings, err := c.integrations.GetIntegration(ctx, userID, domain.ProviderMicrosoftCalendar)
	if err != nil && !isNotFound(err) {
		return Status{}, err
	}
	settings.UserID = userID
	settings.Provider = domain.ProviderMicrosoftCalendar
	return Status{Connected: profile.Connected(), Integration: settings}, nil
}

// forceDisconnect is the system-initiated teardown after the provider
// rejected the credential: clear the token, drop the toggle, mark the
// integration inactive.
func (c *Client) forceDisconnect(ctx context.Context, userID string) error {
	if err := c.profiles.SetRefreshToken(ctx, userID, ""); err != nil {
		return err
	}
	settings, err := c.currentSettings(ctx, userID)
	if err != nil {
		return err
	}
	settings.SyncEnabled = false
	settings.IsActive = false
	return c.integrations.UpsertIntegration(ctx, settings)
}

func (c *Client) push(ctx context.Context, userID string) (SyncResult, error) {
	payload, err := json.Marshal(map[string]string{"userId": userID, "direction": "push"})
	if err != nil {
		return SyncResult{}, err
	}
	body, err := c.postSyncFunction(ctx, payload)
	if err != nil {
		return SyncResult{}, err
	}
	var result SyncResult
	if err := json.Unmarshal(body, &result); err != nil {
		return SyncResult{}, &SyncError{Op: "push", Err: err}
	}
	return result, nil
}

// invokeSyncFunction performs a non-push action (currently the enable
// probe) against the sync function.
func (c *Client) invokeSyncFunction(ctx context.Context, userID, action string) error {
	payload, err := json.Marshal(map[string]string{"userId": userID, "action": action})
	if err != nil {
		return err
	}
	_, err = c.postSyncFunction(ctx, payload)
	return err
}

// postSyncFunction sends one request to the serverless intermediary and
// maps its error contract: the refresh sentinel becomes
// ErrConnectionExpired, everything else stays retryable.
func (c *Client) postSyncFunction(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SyncFunctionURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &SyncError{Op: "sync function", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &SyncError{Op: "sync function", Err: err}
	}

	var failure struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &failure); err == nil && failure.Error != "" {
		if failure.Error == refreshFailedSentinel {
			return nil, ErrConnectionExpired
		}
		return nil, &SyncError{Op: "sync function", Err: errors.New(failure.Error)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &SyncError{Op: "sync function", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return body, nil
}

// currentSettings loads the integration row, falling back to a zero
// record on first contact.
func (c *Client) currentSettings(ctx context.Context, userID string) (domain.IntegrationSettings, error) {
	settings, err := c.integrations.GetIntegration(ctx, userID, domain.ProviderMicrosoftCalendar)
	if err != nil {
		if isNotFound(err) {
			return domain.IntegrationSettings{
				UserID:   userID,
				Provider: domain.ProviderMicrosoftCalendar,
			}, nil
		}
		return domain.IntegrationSettings{}, err
	}
	return settings, nil
}
