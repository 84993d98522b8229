package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coachdesk/internal/metrics"
	"coachdesk/internal/models"
)

func (s *HTTPServer) handleRates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rates, err := s.rates.ListRates(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rates": rates})
	case http.MethodPost:
		s.createRate(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) createRate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DurationMinutes int    `json:"duration_minutes"`
		IsMember        bool   `json:"is_member"`
		RateCents       int64  `json:"rate_cents"`
		EffectiveFrom   string `json:"effective_from"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rate := &models.PayoutRate{
		DurationMinutes: body.DurationMinutes,
		IsMember:        body.IsMember,
		RateCents:       body.RateCents,
	}
	if body.EffectiveFrom != "" {
		from, err := time.Parse("2006-01-02", body.EffectiveFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid effective_from; expected YYYY-MM-DD")
			return
		}
		rate.EffectiveFrom = from
	}

	if err := s.rates.CreateRate(r.Context(), rate); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rate)
}

// handleRate routes /api/v1/admin/payout-rates/{id}/retire.
func (s *HTTPServer) handleRate(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/admin/payout-rates/"
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"), "/")
	if len(parts) != 2 || parts[1] != "retire" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rate id")
		return
	}

	var body struct {
		At string `json:"at"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	var at time.Time
	if body.At != "" {
		at, err = time.Parse("2006-01-02", body.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at; expected YYYY-MM-DD")
			return
		}
	}

	if err := s.rates.RetireRate(r.Context(), id, at); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retired"})
}

func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	runs, err := s.payouts.ListRuns(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func decodePeriod(r *http.Request) (time.Time, time.Time, string) {
	var body struct {
		PeriodStart string `json:"period_start"`
		PeriodEnd   string `json:"period_end"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		return time.Time{}, time.Time{}, "invalid JSON body"
	}

	start, err := time.Parse("2006-01-02", body.PeriodStart)
	if err != nil {
		return time.Time{}, time.Time{}, "invalid period_start; expected YYYY-MM-DD"
	}
	end, err := time.Parse("2006-01-02", body.PeriodEnd)
	if err != nil {
		return time.Time{}, time.Time{}, "invalid period_end; expected YYYY-MM-DD"
	}
	return start, end, ""
}

func (s *HTTPServer) generateRun(w http.ResponseWriter, r *http.Request) {
	start, end, msg := decodePeriod(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := s.payouts.Generate(r.Context(), start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	metrics.IncPayoutRunOp("generate")
	writeJSON(w, http.StatusOK, result)
}

// backfillRun re-resolves rates for the run covering the posted period without
// touching the recorded session facts.
func (s *HTTPServer) backfillRun(w http.ResponseWriter, r *http.Request) {
	start, end, msg := decodePeriod(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	run, err := s.payouts.FindRun(r.Context(), start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := s.payouts.Backfill(r.Context(), run.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	metrics.IncPayoutRunOp("backfill")
	writeJSON(w, http.StatusOK, map[string]any{
		"run":      result.Run,
		"updated":  result.Priced,
		"total":    result.Run.TotalSessions,
		"failures": result.Failures,
	})
}

// handleRun routes the per-run and collection-level payout run actions:
// generate and backfill take a period body; {id}, {id}/lock and {id}/backfill
// address an existing run.
func (s *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/admin/payout-runs/"
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 1 {
		switch parts[0] {
		case "generate":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			s.generateRun(w, r)
			return
		case "backfill":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			s.backfillRun(w, r)
			return
		}
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getRun(w, r, id)
		case http.MethodDelete:
			s.deleteRun(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if len(parts) != 2 || r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch parts[1] {
	case "backfill":
		result, err := s.payouts.Backfill(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		metrics.IncPayoutRunOp("backfill")
		writeJSON(w, http.StatusOK, result)
	case "lock":
		run, err := s.payouts.Lock(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		metrics.IncPayoutRunOp("lock")
		writeJSON(w, http.StatusOK, run)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) getRun(w http.ResponseWriter, r *http.Request, id int64) {
	run, items, err := s.payouts.GetRun(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "line_items": items})
}

func (s *HTTPServer) deleteRun(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.payouts.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.IncPayoutRunOp("delete")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *HTTPServer) handleLineItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter, err := parsePayoutFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := s.payouts.ListLineItems(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"line_items": items})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter, err := parsePayoutFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.payouts.Summarize(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func parsePayoutFilter(r *http.Request) (models.PayoutFilter, error) {
	var filter models.PayoutFilter
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, models.NewValidationError("from", raw)
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, models.NewValidationError("to", raw)
		}
		filter.To = &to
	}
	if raw := firstQueryValue(q, "member", "is_member"); raw != "" {
		isMember, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, models.NewValidationError("member", raw)
		}
		filter.IsMember = &isMember
	}
	if raw := strings.TrimSpace(q.Get("athlete_id")); raw != "" {
		athleteID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, models.NewValidationError("athlete_id", raw)
		}
		filter.AthleteID = &athleteID
	}
	if raw := strings.TrimSpace(q.Get("attendance")); raw != "" {
		attendance := models.AttendanceStatus(raw)
		if !attendance.Valid() {
			return filter, models.NewValidationError("attendance", raw)
		}
		filter.Attendance = attendance
	}
	if raw := firstQueryValue(q, "duration", "duration_minutes"); raw != "" {
		duration, err := strconv.Atoi(raw)
		if err != nil || duration <= 0 {
			return filter, models.NewValidationError("duration", raw)
		}
		filter.DurationMinutes = duration
	}

	return filter, nil
}

func firstQueryValue(q url.Values, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
