package commanders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"incident-portal/internal/audit"
	"incident-portal/internal/events"
	"incident-portal/pkg/logger"
)

const (
	minPasswordLen = 8
	// bcrypt rejects longer inputs.
	maxPasswordLen = 72
)

var requestValidate = validator.New()

// Mailer delivers the password-setup link to a newly registered commander.
type Mailer interface {
	SendPasswordSetup(ctx context.Context, c Commander, link string, expiresAt time.Time) error
}

// Service manages commander onboarding and login.
//
// Registration never fails because email delivery failed; the admin can
// resend the setup link.
type Service struct {
	repo    Repository
	tokens  TokenStore
	mailer  Mailer
	audit   *audit.Service
	bus     *events.Bus
	baseURL string
	clock   func() time.Time
}

func NewService(repo Repository, tokens TokenStore, mailer Mailer, auditSvc *audit.Service, bus *events.Bus, baseURL string) *Service {
	return &Service{
		repo:    repo,
		tokens:  tokens,
		mailer:  mailer,
		audit:   auditSvc,
		bus:     bus,
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Register creates an invited commander and emails a one-time setup link.
func (s *Service) Register(ctx context.Context, actor audit.Actor, req RegisterRequest) (Commander, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	if err := requestValidate.Struct(req); err != nil {
		return Commander{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	now := s.clock().UTC()
	c := Commander{
		ID:        uuid.NewString(),
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		Rank:      req.Rank,
		UnitID:    req.UnitID,
		State:     req.State,
		Status:    StatusInvited,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return Commander{}, err
	}

	logger.From(ctx).Info("commander registered",
		slog.String("commander_id", c.ID),
		slog.String("unit_id", c.UnitID),
	)
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityCommander,
			EntityID:   c.ID,
			ActionType: audit.ActionCommanderRegistered,
			ActorID:    actor.ID,
			ActorType:  actor.Type,
			NewValues: map[string]any{
				"email":   c.Email,
				"unit_id": c.UnitID,
				"state":   c.State,
				"status":  string(c.Status),
			},
			IsSensitive: true,
		})
	}
	s.bus.Publish(ctx, events.Change{
		Table:    events.TableCommanders,
		Type:     events.Insert,
		EntityID: c.ID,
		Record:   c,
	})

	if err := s.sendSetup(ctx, c); err != nil {
		logger.From(ctx).Warn("password setup email failed",
			slog.String("commander_id", c.ID),
			slog.String("err", err.Error()),
		)
	}
	return c, nil
}

// ResendSetup issues a fresh setup link for a commander who has not activated yet.
func (s *Service) ResendSetup(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != StatusInvited {
		return fmt.Errorf("%w: commander is %s", ErrInvalidRequest, c.Status)
	}
	return s.sendSetup(ctx, c)
}

func (s *Service) sendSetup(ctx context.Context, c Commander) error {
	token, digest, err := NewSetupToken()
	if err != nil {
		return err
	}
	if err := s.tokens.Put(ctx, digest, c.ID, SetupTokenTTL); err != nil {
		return fmt.Errorf("commanders: store setup token: %w", err)
	}
	if s.mailer == nil {
		return nil
	}
	expiresAt := s.clock().UTC().Add(SetupTokenTTL)
	return s.mailer.SendPasswordSetup(ctx, c, s.SetupLink(token), expiresAt)
}

// SetupLink is the frontend URL carrying a raw setup token.
func (s *Service) SetupLink(token string) string {
	return s.baseURL + "/setup-password?token=" + url.QueryEscape(token)
}

// CompletePasswordSetup consumes token and activates the commander.
func (s *Service) CompletePasswordSetup(ctx context.Context, token, password string) (Commander, error) {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return Commander{}, ErrWeakPassword
	}
	if token == "" {
		return Commander{}, ErrTokenInvalid
	}
	digest := TokenDigest(token)
	id, remaining, err := s.tokens.Take(ctx, digest)
	if err != nil {
		return Commander{}, err
	}
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		s.restoreToken(ctx, digest, id, remaining)
		return Commander{}, err
	}
	if before.Status == StatusDisabled {
		return Commander{}, ErrTokenInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.restoreToken(ctx, digest, id, remaining)
		return Commander{}, fmt.Errorf("commanders: hash password: %w", err)
	}
	now := s.clock().UTC()
	if err := s.repo.Activate(ctx, id, string(hash), now); err != nil {
		s.restoreToken(ctx, digest, id, remaining)
		return Commander{}, err
	}
	after, err := s.repo.Get(ctx, id)
	if err != nil {
		return Commander{}, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityCommander,
			EntityID:   id,
			ActionType: audit.ActionCommanderActivated,
			ActorID:    id,
			ActorType:  audit.ActorCommander,
			OldValues:  map[string]any{"status": string(before.Status)},
			NewValues:  map[string]any{"status": string(after.Status)},
		})
	}
	s.bus.Publish(ctx, events.Change{
		Table:    events.TableCommanders,
		Type:     events.Update,
		EntityID: id,
		Record:   after,
	})
	return after, nil
}

// restoreToken puts a taken token back for its remaining lifetime so a
// failed activation does not burn the link.
func (s *Service) restoreToken(ctx context.Context, digest, id string, remaining time.Duration) {
	if remaining <= 0 {
		return
	}
	if err := s.tokens.Put(ctx, digest, id, remaining); err != nil {
		logger.From(ctx).Warn("setup token restore failed",
			slog.String("commander_id", id),
			slog.String("err", err.Error()),
		)
	}
}

// Authenticate checks email and password for an active commander.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Commander, error) {
	c, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return Commander{}, ErrInvalidCredentials
	}
	if err != nil {
		return Commander{}, err
	}
	if c.Status != StatusActive || c.PasswordHash == "" {
		return Commander{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return Commander{}, ErrInvalidCredentials
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (Commander, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Commander, error) {
	return s.repo.List(ctx)
}
