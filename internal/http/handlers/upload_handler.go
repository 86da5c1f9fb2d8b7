// Upload HTTP handlers.
//
// This file exposes endpoints for spreadsheet reconciliation:
//   - POST /uploads  (multipart upload of a .csv or .xlsx file)
//   - GET  /uploads  (paginated history of processed uploads)
//
// The upload handler parses the file at the edge and hands the tabular data
// to the upload service, which runs the whole batch in one transaction.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jkimaro/pledges-backend/internal/http/middleware"
	"github.com/jkimaro/pledges-backend/internal/repo"
	"github.com/jkimaro/pledges-backend/internal/services"
	"github.com/jkimaro/pledges-backend/internal/upload"
)

// UploadPledges accepts a multipart form with a single "file" field holding a
// .csv or .xlsx spreadsheet, reconciles it against the registry, and returns
// the aggregate report. Per-row failures are reported in the response without
// failing the batch; only structural problems (missing required columns,
// unreadable file) reject the whole upload.
func (h *Handlers) UploadPledges(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `multipart field "file" is required`)
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot open uploaded file")
		return
	}
	defer f.Close()

	tab, err := upload.Read(fh.Filename, f)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrUnsupportedFormat), errors.Is(err, upload.ErrEmptyFile):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusBadRequest, ErrCodeUploadFailed, "cannot parse uploaded file: "+err.Error())
		}
		return
	}

	report, err := h.uploadSvc.Process(c.Request.Context(), fh.Filename, tab)
	if err != nil {
		var mc *services.MissingColumnsError
		if errors.As(err, &mc) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, mc.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, err.Error())
		return
	}

	middleware.CountUploadRows("new", report.New)
	middleware.CountUploadRows("updated", report.Updated)
	middleware.CountUploadRows("error", len(report.Errors))

	ok(c, http.StatusOK, report)
}

// ListUploads returns the processed-upload history, newest first.
func (h *Handlers) ListUploads(c *gin.Context) {
	db := h.db()
	if db == nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "storage unavailable")
		return
	}

	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	total, err := repo.CountUploadLogs(ctx, db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	logs, err := repo.ListUploadLogsPage(ctx, db, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, gin.H{
		"uploads": logs,
		"pagination": Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
