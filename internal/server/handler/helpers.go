// Package handler implements the read-only ops API over the engine status,
// the session journal and the optional Postgres stores.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// writeJSON falls back to a plain 500 if v cannot be marshaled.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// parseListOpts reads limit (default 50, capped at 500), offset, and the
// RFC 3339 bounds since and until. Unparsable numbers fall back to the
// defaults; an unparsable time is an error.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()
	opts := domain.ListOpts{
		Limit:  min(queryInt(q.Get("limit"), defaultLimit, 1), maxLimit),
		Offset: queryInt(q.Get("offset"), 0, 0),
	}

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"since", &opts.Since}, {"until", &opts.Until}} {
		v := q.Get(bound.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, fmt.Errorf("invalid %s %q: want RFC 3339", bound.name, v)
		}
		*bound.dst = &t
	}
	return opts, nil
}

// queryInt parses v, returning def when it is empty, malformed or below lo.
func queryInt(v string, def, lo int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < lo {
		return def
	}
	return n
}
