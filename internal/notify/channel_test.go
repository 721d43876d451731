package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/caresignal/triage-platform/internal/escalation"
	"github.com/caresignal/triage-platform/internal/triage"
)

type captureEmail struct {
	sent []EmailMessage
	err  error
}

func (c *captureEmail) Send(_ context.Context, msg EmailMessage) error {
	c.sent = append(c.sent, msg)
	return c.err
}

type captureSMS struct {
	to   []string
	body []string
}

func (c *captureSMS) SendSMS(_ context.Context, to, body string) error {
	c.to = append(c.to, to)
	c.body = append(c.body, body)
	return nil
}

func testPayload() escalation.Payload {
	return escalation.Payload{
		EventID:      uuid.New(),
		AssessmentID: uuid.New(),
		PatientID:    "patient-1",
		Level:        triage.LevelDoctor,
		Path:         triage.PathDoctorConsult,
		TopCondition: "Flu",
		Summary:      "Urgency level 2 triage assessment",
	}
}

func TestEscalationChannelRoutesEmail(t *testing.T) {
	email := &captureEmail{}
	ch := NewEscalationChannel(email, nil, nil)

	r := escalation.Recipient{ID: "doc-1", Name: "Dr. A", Channel: "email", Address: "a@clinic.test"}
	if err := ch.Notify(context.Background(), r, testPayload()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(email.sent))
	}
	msg := email.sent[0]
	if msg.To != "a@clinic.test" || msg.ToName != "Dr. A" {
		t.Fatalf("unexpected addressing: %+v", msg)
	}
	if !strings.Contains(msg.Subject, "URGENCY 2") {
		t.Fatalf("subject missing urgency level: %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Flu") || !strings.Contains(msg.Body, "patient-1") {
		t.Fatalf("body missing details: %q", msg.Body)
	}
}

func TestEscalationChannelRoutesSMSAndPager(t *testing.T) {
	sms := &captureSMS{}
	ch := NewEscalationChannel(nil, sms, nil)

	for _, channel := range []string{"sms", "pager"} {
		r := escalation.Recipient{ID: "staff-1", Channel: channel, Address: "+1000"}
		if err := ch.Notify(context.Background(), r, testPayload()); err != nil {
			t.Fatalf("notify via %s: %v", channel, err)
		}
	}
	if len(sms.to) != 2 {
		t.Fatalf("expected 2 SMS sends, got %d", len(sms.to))
	}
	if !strings.Contains(sms.body[0], "patient-1") {
		t.Fatalf("SMS body missing patient: %q", sms.body[0])
	}
}

func TestEscalationChannelUnsupported(t *testing.T) {
	ch := NewEscalationChannel(&captureEmail{}, &captureSMS{}, nil)
	r := escalation.Recipient{ID: "x", Channel: "carrier-pigeon"}
	if err := ch.Notify(context.Background(), r, testPayload()); err == nil {
		t.Fatal("expected error for unsupported channel")
	}
}

func TestEscalationChannelPropagatesSendError(t *testing.T) {
	email := &captureEmail{err: errors.New("smtp down")}
	ch := NewEscalationChannel(email, nil, nil)
	r := escalation.Recipient{ID: "doc-1", Channel: "email", Address: "a@clinic.test"}
	if err := ch.Notify(context.Background(), r, testPayload()); err == nil {
		t.Fatal("expected send error to propagate")
	}
}

func TestOpsEmailAlerter(t *testing.T) {
	email := &captureEmail{}
	alerter := NewOpsEmailAlerter(email, "ops@clinic.test", nil)

	event := escalation.Event{
		ID:           uuid.New(),
		AssessmentID: uuid.New(),
		PatientID:    "patient-1",
		State:        escalation.StateExhausted,
		Attempts:     3,
	}
	alerter.HardAlert(context.Background(), event, testPayload())

	if len(email.sent) != 1 {
		t.Fatalf("expected 1 ops email, got %d", len(email.sent))
	}
	if email.sent[0].To != "ops@clinic.test" {
		t.Fatalf("wrong ops recipient: %q", email.sent[0].To)
	}
	if !strings.Contains(email.sent[0].Subject, "CRITICAL") {
		t.Fatalf("ops subject not marked critical: %q", email.sent[0].Subject)
	}

	// Unconfigured alerter logs instead of sending; must not panic.
	NewOpsEmailAlerter(nil, "", nil).HardAlert(context.Background(), event, testPayload())
}

func TestSimpleSMSSender(t *testing.T) {
	var gotTo, gotFrom, gotBody string
	s := NewSimpleSMSSender("+1999", func(_ context.Context, to, from, body string) error {
		gotTo, gotFrom, gotBody = to, from, body
		return nil
	}, nil)
	if err := s.SendSMS(context.Background(), "+1000", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotTo != "+1000" || gotFrom != "+1999" || gotBody != "hello" {
		t.Fatalf("unexpected send args: %q %q %q", gotTo, gotFrom, gotBody)
	}

	// Unconfigured sender is a logged no-op.
	if err := NewSimpleSMSSender("", nil, nil).SendSMS(context.Background(), "+1", "x"); err != nil {
		t.Fatalf("unconfigured sender must not error: %v", err)
	}
}
