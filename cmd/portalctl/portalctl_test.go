package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"incident-portal/internal/audit"
	"incident-portal/internal/config"

	"golang.org/x/crypto/bcrypt"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSettingsInitThenShow(t *testing.T) {
	t.Setenv("PORTAL_SETTINGS_RATE_LIMIT__BURST", "9")
	path := filepath.Join(t.TempDir(), "settings.yaml")

	if _, err := run(t, "", "settings", "init", "-f", path); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := run(t, "", "settings", "init", "-f", path); err == nil {
		t.Fatalf("expected second init without --force to fail")
	}

	s, err := config.LoadSettings(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.RateLimit.Burst != 9 {
		t.Fatalf("expected env override burst=9, got %d", s.RateLimit.Burst)
	}
	if s.Intake != config.DefaultSettings().Intake {
		t.Fatalf("expected default intake settings, got %+v", s.Intake)
	}

	out, err := run(t, "", "settings", "show", "-f", path)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "burst: 9") {
		t.Fatalf("expected effective settings in output, got:\n%s", out)
	}
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "hunter2-but-longer\n", "hash-password")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2-but-longer")); err != nil {
		t.Fatalf("printed hash does not match password: %v", err)
	}

	if _, err := run(t, "short\n", "hash-password"); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
}

func TestPrintTrail(t *testing.T) {
	entries := []audit.Entry{{
		EntityType:    audit.EntityReport,
		EntityID:      "r-1",
		ActionType:    audit.ActionReportSubmitted,
		ActorType:     audit.ActorCitizen,
		SeverityLevel: audit.SeverityCritical,
		CreatedAt:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}}

	var out bytes.Buffer
	trailCmd.SetOut(&out)
	trailJSON = false
	if err := printTrail(trailCmd, entries); err != nil {
		t.Fatalf("printTrail: %v", err)
	}
	for _, want := range []string{"2025-01-02T03:04:05Z", "report/r-1", "report_submitted", "critical"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, out.String())
		}
	}

	out.Reset()
	trailJSON = true
	defer func() { trailJSON = false }()
	if err := printTrail(trailCmd, entries); err != nil {
		t.Fatalf("printTrail json: %v", err)
	}
	if !strings.Contains(out.String(), `"action_type": "report_submitted"`) {
		t.Fatalf("expected JSON output, got:\n%s", out.String())
	}
}
