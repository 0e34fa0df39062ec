package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	"github.com/noah-isme/camp-checkin-api/pkg/export"
	"github.com/noah-isme/camp-checkin-api/pkg/storage"
)

type exportSource interface {
	ListForExport(ctx context.Context, filter models.AttendeeFilter, confirmedOnly bool) ([]models.Attendee, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	EventName string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	Rows         int
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	source  exportSource
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the
// default CSV and PDF exporters.
func NewExportService(source exportSource, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		source:  source,
		storage: files,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Generate renders the job's dataset, stores it and signs a download URL.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, err := s.BuildDataset(ctx, job.Type, job.Params)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV, "":
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.filename(job), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("report generated",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		Rows:         len(dataset.Rows),
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.DownloadClaims, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, or the configured result TTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// BuildDataset loads the attendees for a report and shapes them into columns.
func (s *ExportService) BuildDataset(ctx context.Context, reportType models.ReportType, params models.ReportJobParams) (export.Dataset, error) {
	filter := params.Filter()
	switch reportType {
	case models.ReportTypeAttendees:
		rows, err := s.source.ListForExport(ctx, filter, false)
		if err != nil {
			return export.Dataset{}, err
		}
		return s.attendeeDataset(rows, params), nil
	case models.ReportTypeCheckIns:
		rows, err := s.source.ListForExport(ctx, filter, true)
		if err != nil {
			return export.Dataset{}, err
		}
		return s.checkInDataset(rows, params), nil
	case models.ReportTypePayments:
		rows, err := s.source.ListForExport(ctx, filter, false)
		if err != nil {
			return export.Dataset{}, err
		}
		return s.paymentDataset(rows, params), nil
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %s", reportType)
	}
}

func (s *ExportService) attendeeDataset(rows []models.Attendee, params models.ReportJobParams) export.Dataset {
	data := export.Dataset{
		Title:    s.title("Attendees"),
		Subtitle: describeFilter(params, len(rows)),
		Columns: []export.Column{
			{Key: "name", Label: "Name", Width: 3},
			{Key: "email", Label: "Email", Width: 3},
			{Key: "phone", Label: "Phone", Width: 2},
			{Key: "church", Label: "Church", Width: 2},
			{Key: "sector", Label: "Sector", Width: 1.5},
			{Key: "role", Label: "Role", Width: 1.5},
			{Key: "shirt", Label: "Shirt", Width: 1},
			{Key: "source", Label: "Source", Width: 1},
			{Key: "status", Label: "Payment", Width: 1.2},
		},
	}
	for _, a := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"name":   a.DisplayName(),
			"email":  a.Email,
			"phone":  a.Phone,
			"church": a.Church,
			"sector": a.Sector,
			"role":   a.Notes,
			"shirt":  deref(a.ShirtSize),
			"source": string(a.Source),
			"status": string(a.PaymentStatus),
		})
	}
	return data
}

func (s *ExportService) checkInDataset(rows []models.Attendee, params models.ReportJobParams) export.Dataset {
	data := export.Dataset{
		Title:    s.title("Check-ins"),
		Subtitle: describeFilter(params, len(rows)),
		Columns: []export.Column{
			{Key: "number", Label: "#", Width: 0.6},
			{Key: "name", Label: "Name", Width: 3},
			{Key: "church", Label: "Church", Width: 2},
			{Key: "sector", Label: "Sector", Width: 1.5},
			{Key: "confirmed_at", Label: "Confirmed at", Width: 2},
			{Key: "balance", Label: "Balance", Width: 1},
		},
	}
	for _, a := range rows {
		number := ""
		if a.AttendanceNumber != nil {
			number = strconv.Itoa(*a.AttendanceNumber)
		}
		confirmedAt := ""
		if a.AttendanceConfirmedAt != nil {
			confirmedAt = a.AttendanceConfirmedAt.Format("2006-01-02 15:04")
		}
		data.Rows = append(data.Rows, map[string]string{
			"number":       number,
			"name":         a.DisplayName(),
			"church":       a.Church,
			"sector":       a.Sector,
			"confirmed_at": confirmedAt,
			"balance":      formatAmount(a.Balance()),
		})
	}
	return data
}

func (s *ExportService) paymentDataset(rows []models.Attendee, params models.ReportJobParams) export.Dataset {
	data := export.Dataset{
		Title:    s.title("Payments"),
		Subtitle: describeFilter(params, len(rows)),
		Columns: []export.Column{
			{Key: "name", Label: "Name", Width: 3},
			{Key: "church", Label: "Church", Width: 2},
			{Key: "expected", Label: "Expected", Width: 1.2},
			{Key: "paid", Label: "Paid", Width: 1.2},
			{Key: "balance", Label: "Balance", Width: 1.2},
			{Key: "status", Label: "Status", Width: 1.2},
		},
	}
	var expected, paid float64
	for _, a := range rows {
		expected += a.ExpectedAmount
		paid += a.AmountPaid
		data.Rows = append(data.Rows, map[string]string{
			"name":     a.DisplayName(),
			"church":   a.Church,
			"expected": formatAmount(a.ExpectedAmount),
			"paid":     formatAmount(a.AmountPaid),
			"balance":  formatAmount(a.Balance()),
			"status":   string(a.PaymentStatus),
		})
	}
	if len(rows) > 0 {
		data.Rows = append(data.Rows, map[string]string{
			"name":     "TOTAL",
			"expected": formatAmount(expected),
			"paid":     formatAmount(paid),
			"balance":  formatAmount(expected - paid),
		})
	}
	return data
}

func (s *ExportService) title(kind string) string {
	if s.cfg.EventName == "" {
		return kind
	}
	return s.cfg.EventName + " - " + kind
}

func (s *ExportService) filename(job *models.ReportJob) string {
	return fmt.Sprintf("%s_%s_%s.%s",
		strings.ToLower(string(job.Type)),
		sanitizeFilename(job.ID),
		s.now().Format("20060102_150405"),
		job.Params.Format.Extension(),
	)
}

func describeFilter(params models.ReportJobParams, count int) string {
	parts := []string{fmt.Sprintf("%d rows", count)}
	if params.Church != "" {
		parts = append(parts, "church: "+params.Church)
	}
	if params.Sector != "" {
		parts = append(parts, "sector: "+params.Sector)
	}
	if params.PaymentStatus != nil {
		parts = append(parts, "payment: "+string(*params.PaymentStatus))
	}
	if params.Confirmed != nil {
		parts = append(parts, "confirmed: "+strconv.FormatBool(*params.Confirmed))
	}
	if params.IncludeTest {
		parts = append(parts, "including test records")
	}
	return strings.Join(parts, " | ")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
