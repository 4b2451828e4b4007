package reports

import (
	"io"
	"time"

	"incident-portal/internal/lifecycle"
)

// SharedReport is what leaves the portal on the change feed. Reporter
// identity and location stay behind.
type SharedReport struct {
	ID               string                 `json:"id"`
	SerialNumber     string                 `json:"serial_number"`
	ThreatType       string                 `json:"threat_type"`
	State            string                 `json:"state"`
	LGA              string                 `json:"lga,omitempty"`
	Status           lifecycle.ReportStatus `json:"status"`
	Urgency          lifecycle.Urgency      `json:"urgency"`
	ValidationStatus string                 `json:"validation_status"`
	IsAnonymous      bool                   `json:"is_anonymous"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func (r Report) Shareable() any {
	return SharedReport{
		ID:               r.ID,
		SerialNumber:     r.SerialNumber,
		ThreatType:       r.ThreatType,
		State:            r.State,
		LGA:              r.LGA,
		Status:           r.Status,
		Urgency:          r.Urgency,
		ValidationStatus: r.ValidationStatus,
		IsAnonymous:      r.IsAnonymous,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// Report is a single citizen-submitted incident record.
//
// Invariants:
// - SerialNumber is globally unique and never changes after insert.
// - ReporterName/ReporterContact are nil when IsAnonymous is true.
// - Status only moves along lifecycle edges; intake always writes pending.
type Report struct {
	ID           string `json:"id" db:"id"`
	SerialNumber string `json:"serial_number" db:"serial_number"`

	Description string  `json:"description" db:"description"`
	ThreatType  string  `json:"threat_type" db:"threat_type"`
	State       string  `json:"state" db:"state"`
	LGA         string  `json:"lga,omitempty" db:"lga"`
	Channel     Channel `json:"channel" db:"channel"`

	// Either a coordinate pair or a free-text location.
	Latitude       *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude      *float64 `json:"longitude,omitempty" db:"longitude"`
	ManualLocation string   `json:"manual_location,omitempty" db:"manual_location"`

	Status           lifecycle.ReportStatus `json:"status" db:"status"`
	Urgency          lifecycle.Urgency      `json:"urgency" db:"urgency"`
	ValidationStatus string                 `json:"validation_status" db:"validation_status"`

	IsAnonymous     bool    `json:"is_anonymous" db:"is_anonymous"`
	ReporterName    *string `json:"reporter_name" db:"reporter_name"`
	ReporterContact *string `json:"reporter_contact" db:"reporter_contact"`

	Images    []string `json:"images" db:"images"`
	Videos    []string `json:"videos" db:"videos"`
	Documents []string `json:"documents" db:"documents"`

	Metadata Metadata `json:"metadata" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Metadata captures the submission context. Stored as JSONB.
type Metadata struct {
	UploadedImages    int       `json:"uploaded_images"`
	UploadedVideos    int       `json:"uploaded_videos"`
	UploadedDocuments int       `json:"uploaded_documents"`
	FailedUploads     int       `json:"failed_uploads"`
	SubmittedAt       time.Time `json:"submitted_at"`
	Channel           Channel   `json:"channel"`
	ClientIP          string    `json:"client_ip,omitempty"`
}

// Files returns every attachment URL with its category.
func (r Report) Files() []Attachment {
	out := make([]Attachment, 0, len(r.Images)+len(r.Videos)+len(r.Documents))
	for _, u := range r.Images {
		out = append(out, Attachment{URL: u, Category: CategoryImages})
	}
	for _, u := range r.Videos {
		out = append(out, Attachment{URL: u, Category: CategoryVideos})
	}
	for _, u := range r.Documents {
		out = append(out, Attachment{URL: u, Category: CategoryDocuments})
	}
	return out
}

type Channel string

const (
	ChannelForm       Channel = "form"
	ChannelVideo      Channel = "video"
	ChannelVoice      Channel = "voice"
	ChannelLivestream Channel = "livestream"
)

const ValidationPending = "pending"

// Category is the storage bucket prefix an attachment lands in.
type Category string

const (
	CategoryImages    Category = "images"
	CategoryVideos    Category = "videos"
	CategoryDocuments Category = "documents"
)

type Attachment struct {
	URL      string   `json:"url"`
	Category Category `json:"category"`
}

// Payload is the citizen-facing submission body.
type Payload struct {
	Description string            `json:"description" validate:"required,min=10"`
	ThreatType  string            `json:"threat_type" validate:"required"`
	State       string            `json:"state" validate:"required"`
	LGA         string            `json:"lga"`
	Channel     Channel           `json:"channel" validate:"omitempty,oneof=form video voice livestream"`
	Urgency     lifecycle.Urgency `json:"urgency" validate:"required,oneof=low medium high critical"`

	Latitude       *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude      *float64 `json:"longitude" validate:"omitempty,longitude"`
	ManualLocation string   `json:"manual_location"`

	IsAnonymous     bool   `json:"is_anonymous"`
	ReporterName    string `json:"reporter_name" validate:"required_if=IsAnonymous false"`
	ReporterContact string `json:"reporter_contact" validate:"required_if=IsAnonymous false"`

	// ClientIP is filled by the transport, never by the client.
	ClientIP string `json:"-"`
}

// File is one attachment handed to intake. Body is read exactly once.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SubmitResult is returned to the citizen after a successful submission.
type SubmitResult struct {
	ReportID      string                 `json:"report_id"`
	SerialNumber  string                 `json:"serial_number"`
	Status        lifecycle.ReportStatus `json:"status"`
	Images        int                    `json:"images"`
	Videos        int                    `json:"videos"`
	Documents     int                    `json:"documents"`
	FailedUploads int                    `json:"failed_uploads"`
	Success       bool                   `json:"success"`
}

// TrackView is the public status view for a serial number. It never carries
// reporter identity or attachments.
type TrackView struct {
	SerialNumber string                 `json:"serial_number"`
	Status       lifecycle.ReportStatus `json:"status"`
	Urgency      lifecycle.Urgency      `json:"urgency"`
	ThreatType   string                 `json:"threat_type"`
	State        string                 `json:"state"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// ListFilter narrows admin report listings. Zero values match everything.
type ListFilter struct {
	Status  lifecycle.ReportStatus
	Urgency lifecycle.Urgency
	State   string
	Limit   int
}

func (f ListFilter) matches(r Report) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Urgency != "" && r.Urgency != f.Urgency {
		return false
	}
	if f.State != "" && r.State != f.State {
		return false
	}
	return true
}
