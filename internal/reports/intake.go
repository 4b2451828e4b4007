package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"incident-portal/internal/audit"
	"incident-portal/internal/config"
	"incident-portal/internal/events"
	"incident-portal/internal/lifecycle"
	"incident-portal/internal/metrics"
	"incident-portal/internal/storage"
	"incident-portal/pkg/logger"
)

var errFileTooLarge = errors.New("reports: file exceeds size limit")

// Service is the report intake and read side.
//
// Intake invariants:
// - Validation failures persist nothing.
// - A failed attachment upload is logged and skipped; the report is still stored.
// - Persistence failures (including serial exhaustion) fail the submission.
// - Audit and change events happen after the insert and never fail intake.
type Service struct {
	repo    Repository
	store   storage.ObjectStore
	serials *SerialGenerator
	audit   *audit.Service
	bus     *events.Bus
	limits  config.IntakeSettings
	clock   func() time.Time
}

func NewService(repo Repository, store storage.ObjectStore, auditSvc *audit.Service, bus *events.Bus, limits config.IntakeSettings) *Service {
	return &Service{
		repo:    repo,
		store:   store,
		serials: NewSerialGenerator(),
		audit:   auditSvc,
		bus:     bus,
		limits:  limits,
		clock:   time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	s.serials.clock = clock
	return s
}

// WithSerialDraw overrides the random source for serial numbers. Used by tests.
func (s *Service) WithSerialDraw(draw func(n int) int) *Service {
	s.serials.draw = draw
	return s
}

// Submit validates p, uploads files best-effort and persists a pending report.
func (s *Service) Submit(ctx context.Context, p Payload, files []File) (SubmitResult, error) {
	log := logger.From(ctx)

	if err := Validate(&p); err != nil {
		metrics.SubmissionsRejected.WithLabelValues("validation").Inc()
		return SubmitResult{}, err
	}

	now := s.clock().UTC()
	up := s.uploadAll(ctx, files)

	r := Report{
		ID:               uuid.NewString(),
		Description:      p.Description,
		ThreatType:       p.ThreatType,
		State:            p.State,
		LGA:              p.LGA,
		Channel:          p.Channel,
		Latitude:         p.Latitude,
		Longitude:        p.Longitude,
		ManualLocation:   p.ManualLocation,
		Status:           lifecycle.ReportPending,
		Urgency:          p.Urgency,
		ValidationStatus: ValidationPending,
		IsAnonymous:      p.IsAnonymous,
		Images:           up.images,
		Videos:           up.videos,
		Documents:        up.documents,
		Metadata: Metadata{
			UploadedImages:    len(up.images),
			UploadedVideos:    len(up.videos),
			UploadedDocuments: len(up.documents),
			FailedUploads:     up.failed,
			SubmittedAt:       now,
			Channel:           p.Channel,
			ClientIP:          p.ClientIP,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !p.IsAnonymous {
		name, contact := p.ReporterName, p.ReporterContact
		r.ReporterName = &name
		r.ReporterContact = &contact
	}

	if err := s.insertWithSerial(ctx, &r); err != nil {
		reason := "persistence"
		if errors.Is(err, ErrExhaustedRetries) {
			reason = "serial_exhausted"
		}
		metrics.SubmissionsRejected.WithLabelValues(reason).Inc()
		log.Error("report insert failed", slog.String("err", err.Error()))
		return SubmitResult{}, err
	}

	metrics.ReportsSubmitted.WithLabelValues(string(r.Channel), string(r.Urgency)).Inc()
	log.Info("report submitted",
		slog.String("report_id", r.ID),
		slog.String("serial_number", r.SerialNumber),
		slog.String("urgency", string(r.Urgency)),
		slog.Int("failed_uploads", up.failed),
	)

	if s.audit != nil {
		s.audit.Record(ctx, submittedEntry(r))
	}
	s.bus.Publish(ctx, events.Change{
		Table:    events.TableReports,
		Type:     events.Insert,
		EntityID: r.ID,
		ReportID: r.ID,
		Record:   r,
	})

	return SubmitResult{
		ReportID:      r.ID,
		SerialNumber:  r.SerialNumber,
		Status:        r.Status,
		Images:        len(r.Images),
		Videos:        len(r.Videos),
		Documents:     len(r.Documents),
		FailedUploads: up.failed,
		Success:       true,
	}, nil
}

// insertWithSerial draws serials until one is free and the insert succeeds.
// A unique violation on insert (lost race) consumes an attempt like a
// pre-checked collision does.
func (s *Service) insertWithSerial(ctx context.Context, r *Report) error {
	for attempt := 1; attempt <= MaxSerialAttempts; attempt++ {
		serial := s.serials.Generate()

		exists, err := s.repo.SerialExists(ctx, serial)
		if err != nil {
			return fmt.Errorf("reports: check serial: %w", err)
		}
		if exists {
			metrics.SerialCollisions.Inc()
			continue
		}

		r.SerialNumber = serial
		err = s.repo.Insert(ctx, *r)
		if errors.Is(err, ErrDuplicateSerial) {
			metrics.SerialCollisions.Inc()
			continue
		}
		if err != nil {
			return fmt.Errorf("reports: insert: %w", err)
		}
		return nil
	}
	r.SerialNumber = ""
	return ErrExhaustedRetries
}

type uploadSummary struct {
	images    []string
	videos    []string
	documents []string
	failed    int
}

type uploadOutcome struct {
	category Category
	url      string
	err      error
}

func (s *Service) uploadAll(ctx context.Context, files []File) uploadSummary {
	sum := uploadSummary{images: []string{}, videos: []string{}, documents: []string{}}
	if len(files) == 0 {
		return sum
	}
	log := logger.From(ctx)

	if limit := s.limits.MaxFilesPerReport; limit > 0 && len(files) > limit {
		log.Warn("too many attachments, extra files skipped",
			slog.Int("received", len(files)),
			slog.Int("max", limit),
		)
		sum.failed += len(files) - limit
		files = files[:limit]
	}

	outcomes := make([]uploadOutcome, len(files))
	var g errgroup.Group
	g.SetLimit(max(1, s.limits.UploadConcurrency))
	for i, f := range files {
		g.Go(func() error {
			outcomes[i] = s.uploadOne(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		metrics.FileUploads.WithLabelValues(string(o.category), metrics.Result(o.err)).Inc()
		if o.err != nil {
			sum.failed++
			log.Warn("attachment upload failed",
				slog.String("file", files[i].Name),
				slog.String("category", string(o.category)),
				slog.String("err", o.err.Error()),
			)
			continue
		}
		switch o.category {
		case CategoryImages:
			sum.images = append(sum.images, o.url)
		case CategoryVideos:
			sum.videos = append(sum.videos, o.url)
		default:
			sum.documents = append(sum.documents, o.url)
		}
	}
	return sum
}

func (s *Service) uploadOne(ctx context.Context, f File) uploadOutcome {
	contentType := ContentType(f)
	out := uploadOutcome{category: Categorize(contentType)}

	if f.Body == nil {
		out.err = errors.New("reports: empty file body")
		return out
	}
	limit := s.limits.MaxFileBytes
	if limit > 0 && f.Size > limit {
		out.err = errFileTooLarge
		return out
	}
	var body io.Reader = f.Body
	if limit > 0 {
		body = &capReader{r: f.Body, left: limit}
	}

	key := ObjectKey(out.category, f.Name, s.clock(), uuid.NewString()[:8])
	out.url, out.err = s.store.Upload(ctx, key, contentType, body)
	return out
}

// ContentType is the declared MIME type, falling back to the file extension.
func ContentType(f File) string {
	if ct := strings.TrimSpace(f.ContentType); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(f.Name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Categorize maps a MIME type to its storage category.
func Categorize(contentType string) Category {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return CategoryImages
	case strings.HasPrefix(contentType, "video/"):
		return CategoryVideos
	default:
		return CategoryDocuments
	}
}

// ObjectKey is "<category>/<unix-nanos>-<nonce>-<name>". The nonce keeps
// same-named files apart when the clock does not advance between uploads.
func ObjectKey(c Category, name string, now time.Time, nonce string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	name = strings.ReplaceAll(name, " ", "_")
	return fmt.Sprintf("%s/%d-%s-%s", c, now.UnixNano(), nonce, name)
}

type capReader struct {
	r    io.Reader
	left int64
}

func (c *capReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, errFileTooLarge
	}
	return n, err
}

func submittedEntry(r Report) audit.Entry {
	newValues := map[string]any{
		"serial_number":     r.SerialNumber,
		"status":            string(r.Status),
		"urgency":           string(r.Urgency),
		"threat_type":       r.ThreatType,
		"state":             r.State,
		"channel":           string(r.Channel),
		"is_anonymous":      r.IsAnonymous,
		"validation_status": r.ValidationStatus,
		"files":             len(r.Images) + len(r.Videos) + len(r.Documents),
	}
	if r.ReporterName != nil {
		newValues["reporter_name"] = *r.ReporterName
	}
	if r.ReporterContact != nil {
		newValues["reporter_contact"] = *r.ReporterContact
	}
	return audit.Entry{
		EntityType:    audit.EntityReport,
		EntityID:      r.ID,
		ActionType:    audit.ActionReportSubmitted,
		ActorType:     audit.ActorCitizen,
		NewValues:     newValues,
		SeverityLevel: auditSeverity(r.Urgency),
		IsSensitive:   !r.IsAnonymous,
		ReportID:      r.ID,
		CreatedAt:     r.CreatedAt,
	}
}

func auditSeverity(u lifecycle.Urgency) audit.Severity {
	if u == lifecycle.UrgencyCritical {
		return audit.SeverityCritical
	}
	return audit.SeverityInfo
}

// Get returns a report by id.
func (s *Service) Get(ctx context.Context, id string) (Report, error) {
	return s.repo.Get(ctx, id)
}

// List returns reports matching f, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Report, error) {
	return s.repo.List(ctx, f)
}

// Track returns the public view for a serial number.
func (s *Service) Track(ctx context.Context, serial string) (TrackView, error) {
	serial = strings.ToUpper(strings.TrimSpace(serial))
	if !ValidSerial(serial) {
		return TrackView{}, ErrNotFound
	}
	r, err := s.repo.GetBySerial(ctx, serial)
	if err != nil {
		return TrackView{}, err
	}
	return TrackView{
		SerialNumber: r.SerialNumber,
		Status:       r.Status,
		Urgency:      r.Urgency,
		ThreatType:   r.ThreatType,
		State:        r.State,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

// TriageQueue returns pending reports, most urgent and then oldest first.
func (s *Service) TriageQueue(ctx context.Context, limit int) ([]Report, error) {
	rs, err := s.repo.List(ctx, ListFilter{Status: lifecycle.ReportPending})
	if err != nil {
		return nil, err
	}
	SortForTriage(rs)
	if limit > 0 && len(rs) > limit {
		rs = rs[:limit]
	}
	return rs, nil
}
