package handlers

import (
	"net/http"
	"os"
	"path/filepath"
)

// DownloadHandler serves the raw CSV stores. It is only mounted on the csv backend.
type DownloadHandler struct {
	LeadsLogPath    string
	FailedLeadsPath string
}

func NewDownloadHandler(leadsLogPath, failedLeadsPath string) *DownloadHandler {
	return &DownloadHandler{LeadsLogPath: leadsLogPath, FailedLeadsPath: failedLeadsPath}
}

// LeadsLog handles GET /download-log.
func (h *DownloadHandler) LeadsLog(w http.ResponseWriter, r *http.Request) {
	serveCSV(w, r, h.LeadsLogPath)
}

// FailedLeads handles GET /download-failed-log.
func (h *DownloadHandler) FailedLeads(w http.ResponseWriter, r *http.Request) {
	serveCSV(w, r, h.FailedLeadsPath)
}

func serveCSV(w http.ResponseWriter, r *http.Request, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "File not found")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}
