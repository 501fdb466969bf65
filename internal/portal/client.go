package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"shiftwatch/internal/shifts"
	"shiftwatch/pkg/logx"
)

const (
	invitationsTableID = "invitations_table"
	scheduledTableID   = "scheduled_shifts_table"
)

type Config struct {
	// LoginURL is the portal login page; credentials are POSTed here as
	// a form. A successful login redirects to the news page.
	LoginURL string
	// ShiftsURL is the page carrying both shift tables. Empty means the
	// login landing page already contains them.
	ShiftsURL string
	Timeout   time.Duration
}

// Client is the HTTP implementation of Source. Each call runs a full
// login with a fresh cookie jar: the portal invalidates sessions
// aggressively and per-user session reuse is not worth the bookkeeping.
type Client struct {
	cfg Config
	log logx.Logger
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.LoginURL) == "" {
		return nil, errors.New("portal login url is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, log: log}, nil
}

func (c *Client) ValidateCredentials(ctx context.Context, identifier, secret string) (bool, error) {
	hc, err := c.newHTTPClient()
	if err != nil {
		return false, err
	}
	_, err = c.login(ctx, hc, identifier, secret)
	if errors.Is(err, ErrCredentialsRejected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) FetchShifts(ctx context.Context, identifier, secret string) (shifts.Batch, error) {
	hc, err := c.newHTTPClient()
	if err != nil {
		return shifts.Batch{}, err
	}
	landing, err := c.login(ctx, hc, identifier, secret)
	if err != nil {
		return shifts.Batch{}, err
	}

	body := landing
	if strings.TrimSpace(c.cfg.ShiftsURL) != "" {
		body, err = c.get(ctx, hc, c.cfg.ShiftsURL)
		if err != nil {
			return shifts.Batch{}, fmt.Errorf("fetch shifts page: %w", err)
		}
	}

	invited, err := ParseShiftTable(strings.NewReader(body), invitationsTableID)
	if err != nil {
		return shifts.Batch{}, fmt.Errorf("parse invitations: %w", err)
	}
	scheduled, err := ParseShiftTable(strings.NewReader(body), scheduledTableID)
	if err != nil {
		return shifts.Batch{}, fmt.Errorf("parse scheduled: %w", err)
	}

	c.log.Debug("shifts fetched",
		logx.Int("invited", len(invited)),
		logx.Int("scheduled", len(scheduled)))
	return shifts.Batch{Invited: invited, Scheduled: scheduled}, nil
}

func (c *Client) newHTTPClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{Jar: jar, Timeout: c.cfg.Timeout}, nil
}

// login POSTs the credential form and returns the landing page body.
// The portal redirects to /news on success and re-renders the login
// form otherwise.
func (c *Client) login(ctx context.Context, hc *http.Client, identifier, secret string) (string, error) {
	form := url.Values{}
	form.Set("login", identifier)
	form.Set("password", secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("portal login: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("portal login read: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("portal login: unexpected status %d", resp.StatusCode)
	}
	if !loggedIn(resp.Request.URL) {
		return "", ErrCredentialsRejected
	}
	return string(b), nil
}

func (c *Client) get(ctx context.Context, hc *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func loggedIn(u *url.URL) bool {
	return u != nil && strings.Contains(u.Path, "/news")
}
