package httpapi

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"incident-portal/internal/dashboard"
	"incident-portal/internal/lifecycle"
	"incident-portal/internal/metrics"
	"incident-portal/internal/reports"

	"github.com/gin-gonic/gin"
)

const (
	formReportField = "report"
	formFilesField  = "files"
)

// SubmitReport accepts a citizen report as JSON, or as multipart with the
// JSON body in the "report" field and attachments under "files".
func (h Handlers) SubmitReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reports not configured"})
		return
	}

	var (
		p     reports.Payload
		files []reports.File
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			metrics.SubmissionsRejected.WithLabelValues("malformed").Inc()
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			return
		}
		raw := form.Value[formReportField]
		if len(raw) == 0 || json.Unmarshal([]byte(raw[0]), &p) != nil {
			metrics.SubmissionsRejected.WithLabelValues("malformed").Inc()
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "report field must be valid json"})
			return
		}
		opened, closeAll, err := openFiles(form.File[formFilesField])
		defer closeAll()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable attachment"})
			return
		}
		files = opened
	} else if err := c.ShouldBindJSON(&p); err != nil {
		metrics.SubmissionsRejected.WithLabelValues("malformed").Inc()
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p.ClientIP = c.ClientIP()

	res, err := h.Reports.Submit(c.Request.Context(), p, files)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func openFiles(headers []*multipart.FileHeader) ([]reports.File, func(), error) {
	var closers []multipart.File
	closeAll := func() {
		for _, f := range closers {
			_ = f.Close()
		}
	}

	out := make([]reports.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, f)
		out = append(out, reports.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return out, closeAll, nil
}

// TrackReport is the public status lookup by serial number.
func (h Handlers) TrackReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reports not configured"})
		return
	}
	view, err := h.Reports.Track(c.Request.Context(), c.Param("serial"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// --- Admin ---

// ListReports returns the triage queue when ?queue=triage, otherwise a
// filtered listing.
func (h Handlers) ListReports(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}

	var rs []reports.Report
	if c.Query("queue") == "triage" {
		rs, err = h.Reports.TriageQueue(c.Request.Context(), limit)
	} else {
		rs, err = h.Reports.List(c.Request.Context(), reports.ListFilter{
			Status:  lifecycle.ReportStatus(c.Query("status")),
			Urgency: lifecycle.Urgency(c.Query("urgency")),
			State:   c.Query("state"),
			Limit:   limit,
		})
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if rs == nil {
		rs = []reports.Report{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": rs, "count": len(rs)})
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

// GetReport returns a report with its assignment history.
func (h Handlers) GetReport(c *gin.Context) {
	ctx := c.Request.Context()
	r, err := h.Reports.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	history, err := h.Assignments.ListByReport(ctx, r.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": r, "assignments": history})
}

// ReportTrail returns the audit entries for a report, oldest first.
func (h Handlers) ReportTrail(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.Reports.Get(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	entries, err := h.Audit.Trail(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report_id": id, "entries": entries})
}

// Stats returns the cached dashboard snapshot, or a ranged computation when
// both from and to (RFC 3339) are given.
func (h Handlers) Stats(c *gin.Context) {
	if h.Dashboard == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dashboard not configured"})
		return
	}
	from, to := c.Query("from"), c.Query("to")
	if from == "" && to == "" {
		sum, err := h.Dashboard.Snapshot(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
		return
	}

	rng, err := parseRange(from, to)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to must be RFC 3339 timestamps"})
		return
	}
	sum, err := h.Dashboard.Compute(c.Request.Context(), rng)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func parseRange(from, to string) (dashboard.TimeRange, error) {
	f, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return dashboard.TimeRange{}, err
	}
	t, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return dashboard.TimeRange{}, err
	}
	return dashboard.TimeRange{From: f.UTC(), To: t.UTC()}, nil
}
