// Package notify fans meeting invitations out to attendees and drains
// the reminder queue. Delivery is best-effort: a rejected address never
// fails the task operation that triggered it, the caller only sees
// counts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// Invite is one templated meeting message for one recipient.
type Invite struct {
	To        string    `json:"to"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime,omitzero"`
	Location  string    `json:"location,omitempty"`
	Organizer string    `json:"organizer,omitempty"`
}

// MeetingDetails carries the invite template shared by all attendees.
type MeetingDetails struct {
	Title     string
	StartTime time.Time
	EndTime   time.Time
	Location  string
	Organizer string
}

// Mailer sends one message to one address.
type Mailer interface {
	SendInvite(ctx context.Context, invite Invite) error
}

// HTTPMailer delivers invites through the mail function.
type HTTPMailer struct {
	url  string
	http *http.Client
}

// NewHTTPMailer creates a mailer posting to the given mail function URL.
func NewHTTPMailer(url string, httpClient *http.Client) *HTTPMailer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPMailer{url: url, http: httpClient}
}

// SendInvite posts a single invite. Any non-200 response counts as a
// delivery failure for that recipient.
func (m *HTTPMailer) SendInvite(ctx context.Context, invite Invite) error {
	payload, err := json.Marshal(invite)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mail function status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// Dispatcher sends meeting invites, one per attendee.
type Dispatcher struct {
	mailer Mailer
	logger *log.Logger
}

// NewDispatcher creates an invite dispatcher.
func NewDispatcher(mailer Mailer, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New()
	}
	return &Dispatcher{mailer: mailer, logger: logger}
}

// SendMeetingInvites mails every attendee independently and returns the
// per-recipient outcome counts. One bounced address does not stop the
// remaining sends and never produces an error.
func (d *Dispatcher) SendMeetingInvites(ctx context.Context, attendees []string, details MeetingDetails) (success, failure int) {
	for _, to := range attendees {
		if to == "" {
			continue
		}
		invite := Invite{
			To:        to,
			Title:     details.Title,
			StartTime: details.StartTime,
			EndTime:   details.EndTime,
			Location:  details.Location,
			Organizer: details.Organizer,
		}
		if err := d.mailer.SendInvite(ctx, invite); err != nil {
			d.logger.WithError(err).Warnf("invite to %s failed", to)
			failure++
			continue
		}
		success++
	}
	return success, failure
}
