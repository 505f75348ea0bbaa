package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// JournalSource is satisfied by *service.Journal.
type JournalSource interface {
	Recent(n int) []domain.JournalEntry
}

// JournalHandler serves the in-memory session journal and the persistent
// audit log.
type JournalHandler struct {
	journal JournalSource
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewJournalHandler creates a JournalHandler. audit may be nil.
func NewJournalHandler(journal JournalSource, audit domain.AuditStore, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{
		journal: journal,
		audit:   audit,
		logger:  logger.With(slog.String("handler", "journal")),
	}
}

// Recent handles GET /api/journal, newest first.
func (h *JournalHandler) Recent(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": h.journal.Recent(opts.Limit)})
}

// Audit handles GET /api/audit.
func (h *JournalHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log is not enabled")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
