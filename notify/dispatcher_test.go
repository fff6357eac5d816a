package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

type scriptedMailer struct {
	rejected map[string]error
	sent     []Invite
}

func (m *scriptedMailer) SendInvite(_ context.Context, invite Invite) error {
	if err, ok := m.rejected[invite.To]; ok {
		return err
	}
	m.sent = append(m.sent, invite)
	return nil
}

func TestSendMeetingInvitesCountsPartialFailure(t *testing.T) {
	mailer := &scriptedMailer{rejected: map[string]error{
		"bounce@example.com": errors.New("mailbox unavailable"),
	}}
	d := NewDispatcher(mailer, log.New())

	attendees := []string{"a@example.com", "bounce@example.com", "b@example.com"}
	success, failure := d.SendMeetingInvites(context.Background(), attendees, MeetingDetails{
		Title:     "Sprint review",
		StartTime: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
	})

	if success != 2 || failure != 1 {
		t.Fatalf("got (%d, %d), want (2, 1)", success, failure)
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(mailer.sent))
	}
	for _, inv := range mailer.sent {
		if inv.Title != "Sprint review" {
			t.Fatalf("template not applied: %+v", inv)
		}
	}
}

func TestSendMeetingInvitesAllFail(t *testing.T) {
	mailer := &scriptedMailer{rejected: map[string]error{
		"a@example.com": errors.New("down"),
		"b@example.com": errors.New("down"),
	}}
	d := NewDispatcher(mailer, log.New())

	success, failure := d.SendMeetingInvites(context.Background(), []string{"a@example.com", "b@example.com"}, MeetingDetails{Title: "x"})
	if success != 0 || failure != 2 {
		t.Fatalf("got (%d, %d), want (0, 2)", success, failure)
	}
}

func TestSendMeetingInvitesSkipsBlankAddresses(t *testing.T) {
	mailer := &scriptedMailer{}
	d := NewDispatcher(mailer, log.New())

	success, failure := d.SendMeetingInvites(context.Background(), []string{"", "a@example.com"}, MeetingDetails{Title: "x"})
	if success != 1 || failure != 0 {
		t.Fatalf("got (%d, %d), want (1, 0)", success, failure)
	}
}

func TestHTTPMailerPostsInvite(t *testing.T) {
	var got Invite
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode invite: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewHTTPMailer(srv.URL, srv.Client())
	invite := Invite{To: "a@example.com", Title: "Standup", StartTime: time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)}
	if err := m.SendInvite(context.Background(), invite); err != nil {
		t.Fatalf("send invite: %v", err)
	}
	if got.To != invite.To || got.Title != invite.Title || !got.StartTime.Equal(invite.StartTime) {
		t.Fatalf("mail function received %+v", got)
	}
}

func TestHTTPMailerNon200IsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rejected", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	m := NewHTTPMailer(srv.URL, srv.Client())
	if err := m.SendInvite(context.Background(), Invite{To: "a@example.com"}); err == nil {
		t.Fatal("expected delivery error")
	}
}
