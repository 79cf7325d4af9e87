package httpapi

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
)

const (
	qaUploadTimeout   = 30 * time.Second
	qaMaxQuestionLen  = 1000
	qaMaxAnswerLen    = 10000
	qaUploadRowCap    = 10000 // rows beyond this are dropped, reported by a single error entry
)

// QAUploadProjects is the subset of *project.Registry the upload service
// needs: read existing pairs to detect duplicates, write new ones.
type QAUploadProjects interface {
	ListQAPairs(ctx context.Context, projectID string) ([]domain.QAPair, error)
	UpsertQAPair(ctx context.Context, qa domain.QAPair) error
}

// QAUploadService implements the CSV/XLSX bulk-import contract from
// spec.md §6: POST /api/v1/admin/knowledge/qa/upload.
type QAUploadService struct {
	Projects      QAUploadProjects
	MaxUploadSize int64
}

// NewQAUploadService builds a QAUploadService. maxUploadSize mirrors the
// MAX_UPLOAD_SIZE configuration knob.
func NewQAUploadService(projects QAUploadProjects, maxUploadSize int64) *QAUploadService {
	if maxUploadSize <= 0 {
		maxUploadSize = 100 << 20
	}
	return &QAUploadService{Projects: projects, MaxUploadSize: maxUploadSize}
}

// UploadResult is the wire body of a successful upload.
type UploadResult struct {
	Imported   int      `json:"imported"`
	Skipped    int      `json:"skipped"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors"`
}

// Import parses the uploaded file and upserts every row that survives
// validation. Rows matching an already-known (project, question) pair
// count as duplicates and are never re-written, so re-uploading the same
// file twice leaves the corpus unchanged on the second call.
func (s *QAUploadService) Import(ctx context.Context, projectID string, filename string, r io.Reader) (UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, qaUploadTimeout)
	defer cancel()

	existing, err := s.Projects.ListQAPairs(ctx, projectID)
	if err != nil {
		return UploadResult{}, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, qa := range existing {
		seen[normalizeQuestion(qa.Question)] = struct{}{}
	}

	rows, err := readQARows(filename, r)
	if err != nil {
		return UploadResult{}, apierr.Wrap(apierr.KindValidation, "unreadable QA file", err)
	}

	result := UploadResult{}
	for i, row := range rows {
		if i >= qaUploadRowCap {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: exceeds max row cap, truncated", i+1))
			break
		}
		if len(row) < 2 {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: expected question,answer[,priority]", i+1))
			continue
		}
		question := truncateRune(strings.TrimSpace(row[0]), qaMaxQuestionLen)
		answer := truncateRune(strings.TrimSpace(row[1]), qaMaxAnswerLen)
		if question == "" || answer == "" {
			result.Skipped++
			continue
		}
		key := normalizeQuestion(question)
		if _, dup := seen[key]; dup {
			result.Duplicates++
			continue
		}
		priority := 0.0
		if len(row) >= 3 {
			priority = cast.ToFloat64(row[2])
		}
		qa := domain.QAPair{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			Question:  question,
			Answer:    answer,
			Priority:  priority,
		}
		if err := s.Projects.UpsertQAPair(ctx, qa); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		seen[key] = struct{}{}
		result.Imported++
	}
	return result, nil
}

func normalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

func truncateRune(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// readQARows dispatches on file extension: .csv uses encoding/csv, .xlsx
// uses excelize over the first sheet.
func readQARows(filename string, r io.Reader) ([][]string, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("xlsx file has no sheets")
		}
		return f.GetRows(sheets[0])
	case strings.HasSuffix(lower, ".csv"):
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		return cr.ReadAll()
	default:
		return nil, fmt.Errorf("unsupported file extension %q: expected .csv or .xlsx", filename)
	}
}

// handleQAUpload serves POST /api/v1/admin/knowledge/qa/upload.
func (d *Deps) handleQAUpload(c *gin.Context) {
	if d.QAUpload == nil {
		writeError(c, apierr.New(apierr.KindInternal, "QA upload not configured"))
		return
	}
	project := c.PostForm("project")
	if project == "" {
		writeError(c, apierr.Validation("project", "project is required"))
		return
	}

	maxSize := d.MaxUploadSize
	if maxSize <= 0 {
		maxSize = d.QAUpload.MaxUploadSize
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, apierr.Validation("file", "file is required"))
		return
	}
	if fileHeader.Size > maxSize {
		writeError(c, apierr.Validation("file", fmt.Sprintf("file exceeds max upload size of %d bytes", maxSize)))
		return
	}
	if !validQAMIME(fileHeader) {
		writeError(c, apierr.Validation("file", "unsupported file type: expected CSV or XLSX"))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		writeError(c, apierr.Wrap(apierr.KindValidation, "open uploaded file", err))
		return
	}
	defer f.Close()

	result, err := d.QAUpload.Import(c.Request.Context(), project, fileHeader.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func validQAMIME(fh *multipart.FileHeader) bool {
	lower := strings.ToLower(fh.Filename)
	if strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, ".xlsx") {
		return true
	}
	ct := fh.Header.Get("Content-Type")
	switch ct {
	case "text/csv", "application/csv",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return true
	default:
		return false
	}
}
