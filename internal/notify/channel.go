package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/caresignal/triage-platform/internal/escalation"
	"github.com/caresignal/triage-platform/pkg/logging"
)

// SMSSender sends SMS messages to caregivers.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// SimpleSMSSender wraps a provider-specific send function.
type SimpleSMSSender struct {
	sendFunc func(ctx context.Context, to, from, body string) error
	from     string
	logger   *logging.Logger
}

// NewSimpleSMSSender creates an SMS sender with a custom send function.
func NewSimpleSMSSender(from string, sendFunc func(ctx context.Context, to, from, body string) error, logger *logging.Logger) *SimpleSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SimpleSMSSender{sendFunc: sendFunc, from: from, logger: logger}
}

// SendSMS sends an SMS message.
func (s *SimpleSMSSender) SendSMS(ctx context.Context, to, body string) error {
	if s.sendFunc == nil {
		s.logger.Warn("notify: SMS sender not configured")
		return nil
	}
	return s.sendFunc(ctx, to, s.from, body)
}

var _ SMSSender = (*SimpleSMSSender)(nil)

// EscalationChannel routes escalation payloads to caregivers over their
// preferred channel. Implements escalation.DeliveryChannel.
type EscalationChannel struct {
	email  EmailSender
	sms    SMSSender
	logger *logging.Logger
}

// NewEscalationChannel creates the channel-agnostic delivery adapter.
func NewEscalationChannel(email EmailSender, sms SMSSender, logger *logging.Logger) *EscalationChannel {
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationChannel{email: email, sms: sms, logger: logger}
}

// Notify delivers one escalation payload to one recipient.
func (c *EscalationChannel) Notify(ctx context.Context, recipient escalation.Recipient, payload escalation.Payload) error {
	switch recipient.Channel {
	case "email", "":
		if c.email == nil {
			return fmt.Errorf("notify: email sender not configured")
		}
		subject := fmt.Sprintf("[URGENCY %d] Triage escalation for patient %s", payload.Level, payload.PatientID)
		return c.email.Send(ctx, EmailMessage{
			To:      recipient.Address,
			ToName:  recipient.Name,
			Subject: subject,
			Body:    formatEscalationBody(payload),
		})
	case "sms", "pager":
		if c.sms == nil {
			return fmt.Errorf("notify: SMS sender not configured")
		}
		return c.sms.SendSMS(ctx, recipient.Address, formatEscalationSMS(payload))
	default:
		return fmt.Errorf("notify: unsupported channel %q for recipient %s", recipient.Channel, recipient.ID)
	}
}

func formatEscalationBody(p escalation.Payload) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Escalation ID: %s\n", p.EventID))
	sb.WriteString(fmt.Sprintf("Assessment: %s\n", p.AssessmentID))
	sb.WriteString(fmt.Sprintf("Patient: %s\n", p.PatientID))
	sb.WriteString(fmt.Sprintf("Urgency: level %d (%s)\n", p.Level, p.Path))
	if p.TopCondition != "" {
		sb.WriteString(fmt.Sprintf("Top condition: %s\n", p.TopCondition))
	}
	sb.WriteString("\n")
	sb.WriteString(p.Summary)
	sb.WriteString("\n\nAcknowledge this escalation to stop further notifications.")
	return sb.String()
}

func formatEscalationSMS(p escalation.Payload) string {
	msg := fmt.Sprintf("[L%d %s] Patient %s needs attention", p.Level, strings.ToUpper(string(p.Path)), p.PatientID)
	if p.TopCondition != "" {
		msg += fmt.Sprintf(" (%s)", p.TopCondition)
	}
	return msg + ". Acknowledge to stop escalation."
}

var _ escalation.DeliveryChannel = (*EscalationChannel)(nil)

// OpsEmailAlerter emails the operations address when an escalation exhausts
// every tier. Implements escalation.OpsAlerter.
type OpsEmailAlerter struct {
	email  EmailSender
	opsTo  string
	logger *logging.Logger
}

// NewOpsEmailAlerter creates the hard-alert sink for exhausted escalations.
func NewOpsEmailAlerter(email EmailSender, opsTo string, logger *logging.Logger) *OpsEmailAlerter {
	if logger == nil {
		logger = logging.Default()
	}
	return &OpsEmailAlerter{email: email, opsTo: opsTo, logger: logger}
}

// HardAlert reports total notification failure for an escalation.
func (a *OpsEmailAlerter) HardAlert(ctx context.Context, event escalation.Event, payload escalation.Payload) {
	if a.email == nil || a.opsTo == "" {
		a.logger.Error("escalation exhausted and no ops email configured",
			"event_id", event.ID, "assessment_id", event.AssessmentID)
		return
	}
	subject := fmt.Sprintf("[CRITICAL] Escalation exhausted for patient %s", event.PatientID)
	body := fmt.Sprintf("Every recipient tier failed to acknowledge.\n\n%s\nAttempts: %d\n",
		formatEscalationBody(payload), event.Attempts)
	if err := a.email.Send(ctx, EmailMessage{To: a.opsTo, Subject: subject, Body: body}); err != nil {
		a.logger.Error("ops alert email failed", "error", err, "event_id", event.ID)
	}
}

var _ escalation.OpsAlerter = (*OpsEmailAlerter)(nil)
