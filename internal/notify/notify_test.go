package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incident-portal/internal/assignments"
	"incident-portal/internal/commanders"
	"incident-portal/internal/config"
	"incident-portal/internal/events"
	"incident-portal/internal/lifecycle"
	"incident-portal/internal/reports"
)

type captureSender struct {
	mu   sync.Mutex
	sent []Message
}

func (s *captureSender) Send(ctx context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return nil
}

func (s *captureSender) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

func TestMailer_PasswordSetupEscapesHTML(t *testing.T) {
	sender := &captureSender{}
	m := NewMailer(sender, "https://portal.example.ng")

	c := commanders.Commander{FullName: "Ade <script>", Email: "ade@police.example.ng"}
	exp := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, m.SendPasswordSetup(context.Background(), c, "https://portal.example.ng/setup-password?token=abc", exp))

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, KindPasswordSetup, msgs[0].Kind)
	assert.Equal(t, "ade@police.example.ng", msgs[0].ToEmail)
	assert.Contains(t, msgs[0].Plain, "token=abc")
	assert.Contains(t, msgs[0].Plain, "2025-03-01 10:00")
	assert.Contains(t, msgs[0].HTML, "Ade &lt;script&gt;")
	assert.NotContains(t, msgs[0].HTML, "<script>")
}

type listenerFixture struct {
	sender   *captureSender
	bus      *events.Bus
	settings config.NotificationSettings
	report   reports.Report
}

func newListenerFixture(t *testing.T) *listenerFixture {
	t.Helper()
	ctx := context.Background()
	f := &listenerFixture{
		sender:   &captureSender{},
		bus:      events.NewBus(nil),
		settings: config.DefaultSettings().Notifications,
		report: reports.Report{
			ID:           "r1",
			SerialNumber: "DHQ-2025-004211",
			ThreatType:   "kidnapping",
			State:        "Kaduna",
			Urgency:      lifecycle.UrgencyCritical,
			Status:       lifecycle.ReportAssigned,
		},
	}

	rs := reports.NewMemoryRepo()
	require.NoError(t, rs.Insert(ctx, f.report))
	cmds := commanders.NewMemoryRepo()
	require.NoError(t, cmds.Insert(ctx, commanders.Commander{ID: "c1", FullName: "Musa Ibrahim", Email: "musa@police.example.ng", Status: commanders.StatusActive}))

	l := NewListener(NewMailer(f.sender, "https://portal.example.ng"), cmds, rs, func() config.NotificationSettings { return f.settings })
	l.Subscribe(f.bus)
	return f
}

func (f *listenerFixture) publish(t *testing.T, typ events.Type, a assignments.Assignment) {
	t.Helper()
	f.bus.Publish(context.Background(), events.Change{Table: events.TableAssignments, Type: typ, EntityID: a.ID, ReportID: a.ReportID, Record: a})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.bus.Drain(ctx))
}

func TestListener_EmailsOnAssignmentAndRevision(t *testing.T) {
	f := newListenerFixture(t)
	a := assignments.Assignment{ID: "a1", ReportID: "r1", CommanderID: "c1", Status: lifecycle.AssignmentAssigned}

	f.publish(t, events.Insert, a)

	a.Status = lifecycle.AssignmentAccepted
	f.publish(t, events.Update, a)

	a.Status = lifecycle.AssignmentReturnedForRevision
	a.RevisionReason = "Casualty figures missing"
	f.publish(t, events.Update, a)

	msgs := f.sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, KindAssignment, msgs[0].Kind)
	assert.Contains(t, msgs[0].Subject, "DHQ-2025-004211")
	assert.Contains(t, msgs[0].Subject, "critical")
	assert.Equal(t, KindRevision, msgs[1].Kind)
	assert.True(t, strings.Contains(msgs[1].Plain, "Casualty figures missing"))
	assert.Contains(t, msgs[1].Plain, "https://portal.example.ng/commander/assignments/a1")
}

func TestListener_RespectsSettings(t *testing.T) {
	f := newListenerFixture(t)
	f.settings.EmailOnAssignment = false
	f.settings.EmailOnRevision = false

	a := assignments.Assignment{ID: "a1", ReportID: "r1", CommanderID: "c1", Status: lifecycle.AssignmentAssigned}
	f.publish(t, events.Insert, a)
	a.Status = lifecycle.AssignmentReturnedForRevision
	f.publish(t, events.Update, a)

	assert.Empty(t, f.sender.messages())
}
