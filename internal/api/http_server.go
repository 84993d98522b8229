package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"coachdesk/internal/config"
	"coachdesk/internal/database"
	"coachdesk/internal/metrics"
	"coachdesk/internal/models"
	"coachdesk/internal/payments"
	"coachdesk/internal/service"
	"coachdesk/internal/status"
)

// HTTPServer exposes the booking and payout administration API.
type HTTPServer struct {
	cfg        config.APIConfig
	bookings   *service.BookingService
	payouts    *service.PayoutService
	rates      *service.RateService
	reconciler *payments.Reconciler
	server     *http.Server
	auth       *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, bookings *service.BookingService, payouts *service.PayoutService,
	rates *service.RateService, reconciler *payments.Reconciler) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:        cfg,
		bookings:   bookings,
		payouts:    payouts,
		rates:      rates,
		reconciler: reconciler,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBooking)
	mux.HandleFunc("/api/v1/stripe/sync-payments", srv.handleSyncPayments)
	mux.HandleFunc("/api/v1/admin/payout-rates", srv.handleRates)
	mux.HandleFunc("/api/v1/admin/payout-rates/", srv.handleRate)
	mux.HandleFunc("/api/v1/admin/payout-runs", srv.handleRuns)
	mux.HandleFunc("/api/v1/admin/payout-runs/", srv.handleRun)
	mux.HandleFunc("/api/v1/admin/payouts/list", srv.handleLineItems)
	mux.HandleFunc("/api/v1/admin/payouts/summary", srv.handleSummary)
	mux.HandleFunc("/api/v1/admin/payouts/export.csv", srv.handleExportCSV)
	mux.HandleFunc("/api/v1/admin/payouts/export.xlsx", srv.handleExportXLSX)
	mux.HandleFunc("/api/v1/admin/payouts/export.pdf", srv.handleExportPDF)
	mux.HandleFunc("/healthz", handleHealth)

	handler := loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler, used by tests to serve requests
// without binding a port.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	log.Printf("HTTP API listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBookings(w, r)
	case http.MethodPost:
		s.createBooking(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	bucket := strings.TrimSpace(r.URL.Query().Get("bucket"))
	if bucket == "" {
		bucket = "active"
	}
	if bucket != "active" && bucket != "archived" {
		writeError(w, http.StatusBadRequest, "bucket must be active or archived")
		return
	}

	bookings, err := s.bookings.ListBookings(r.Context(), bucket == "archived")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings, "bucket": bucket})
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	var booking models.Booking
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&booking); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if booking.AthleteID == 0 || booking.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "athlete_id and date are required")
		return
	}

	if err := s.bookings.CreateBooking(r.Context(), &booking); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &booking)
}

// handleBooking routes /api/v1/bookings/{id} and /api/v1/bookings/{id}/{field}
// where field is one of status, payment_status, attendance_status.
func (s *HTTPServer) handleBooking(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/bookings/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getBooking(w, r, id)
	case len(parts) == 2 && r.Method == http.MethodPatch:
		s.patchBookingStatus(w, r, id, parts[1])
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) getBooking(w http.ResponseWriter, r *http.Request, id int64) {
	booking, err := s.bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) patchBookingStatus(w http.ResponseWriter, r *http.Request, id int64, fieldName string) {
	var field status.Field
	switch fieldName {
	case "status":
		field = status.FieldBooking
	case "payment-status", "payment_status":
		field = status.FieldPayment
	case "attendance-status", "attendance_status":
		field = status.FieldAttendance
	default:
		writeError(w, http.StatusNotFound, "unknown status field")
		return
	}

	// The value travels under the field's own name; "value" is accepted too.
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	value := strings.TrimSpace(body[string(field)])
	if value == "" {
		value = strings.TrimSpace(body["value"])
	}
	if value == "" {
		writeError(w, http.StatusBadRequest, string(field)+" is required")
		return
	}

	result, err := s.bookings.UpdateBookingStatus(r.Context(), id, field, value)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	metrics.IncStatusTransition(string(field))
	writeJSON(w, http.StatusOK, map[string]any{
		"booking":  result.Booking,
		"warnings": result.Warnings,
	})
}

func (s *HTTPServer) handleSyncPayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.reconciler.SyncBatch(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	metrics.IncPaymentSync("batch")
	// Per-booking failures are part of the report, not an HTTP error.
	writeJSON(w, http.StatusOK, result)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *models.ValidationError
	var consistencyErr *models.ConsistencyError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &consistencyErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound), errors.Is(err, database.ErrRateNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrRunLocked),
		errors.Is(err, database.ErrRateRetired),
		errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)
		metrics.IncHTTP(r.URL.Path)
		log.Printf("http request_id=%s method=%s path=%s status=%d dur=%s",
			requestID, r.Method, r.URL.Path, recorder.status, dur)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
