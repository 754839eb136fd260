package adaptor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"seat-reservation/internal/domain"
	"seat-reservation/internal/dto/request"
	"seat-reservation/internal/dto/response"
	"seat-reservation/internal/usecase"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type stubBookingService struct {
	reserve func(key string, req *request.ReserveSeatRequest) (*usecase.ReserveResult, error)
	get     func(id string) (*response.BookingDetailResponse, error)
}

func (s stubBookingService) ReserveSeat(_ context.Context, key string, req *request.ReserveSeatRequest) (*usecase.ReserveResult, error) {
	return s.reserve(key, req)
}

func (s stubBookingService) GetBooking(_ context.Context, id string) (*response.BookingDetailResponse, error) {
	return s.get(id)
}

type envelope struct {
	Status  bool              `json:"status"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

func bookingRouter(svc usecase.BookingService) http.Handler {
	h := NewBookingHandler(svc, zap.NewNop())
	r := chi.NewRouter()
	r.Post("/api/bookings", h.ReserveSeat)
	r.Get("/api/bookings/{id}", h.GetBooking)
	return r
}

func TestReserveSeatPassesKeyAndBody(t *testing.T) {
	var gotKey string
	var gotReq *request.ReserveSeatRequest
	svc := stubBookingService{reserve: func(key string, req *request.ReserveSeatRequest) (*usecase.ReserveResult, error) {
		gotKey, gotReq = key, req
		return &usecase.ReserveResult{StatusCode: http.StatusCreated, Body: json.RawMessage(`{"id":"b1"}`)}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(`{"seat_id":"s","user_id":"u"}`))
	req.Header.Set(IdempotencyKeyHeader, "abc")
	rec := httptest.NewRecorder()
	bookingRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotKey != "abc" || gotReq.SeatID != "s" || gotReq.UserID != "u" {
		t.Fatalf("service got key=%q req=%+v", gotKey, gotReq)
	}
	if rec.Header().Get(ReplayedHeader) != "" {
		t.Fatal("fresh reservation marked as replay")
	}
	if env := decode(t, rec); string(env.Data) != `{"id":"b1"}` {
		t.Fatalf("data = %s", env.Data)
	}
}

func TestReserveSeatReplayHeader(t *testing.T) {
	svc := stubBookingService{reserve: func(string, *request.ReserveSeatRequest) (*usecase.ReserveResult, error) {
		return &usecase.ReserveResult{Replayed: true, StatusCode: http.StatusCreated, Body: json.RawMessage(`{"id":"b1"}`)}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	bookingRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated || rec.Header().Get(ReplayedHeader) != "true" {
		t.Fatalf("status = %d, replay header = %q", rec.Code, rec.Header().Get(ReplayedHeader))
	}
}

func TestReserveSeatErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"validation", domain.ValidationError{Field: "seat_id", Msg: "is required"}, http.StatusBadRequest, ""},
		{"not found", domain.NotFoundError{Resource: "seat", ID: "x"}, http.StatusNotFound, ""},
		{"already booked", domain.ConflictError{Reason: domain.ReasonAlreadyBooked}, http.StatusConflict, string(domain.ReasonAlreadyBooked)},
		{"on hold", domain.ConflictError{Reason: domain.ReasonOnHold}, http.StatusConflict, string(domain.ReasonOnHold)},
		{"lock unavailable", domain.ConflictError{Reason: domain.ReasonLockUnavailable}, http.StatusConflict, string(domain.ReasonLockUnavailable)},
		{"payload mismatch", domain.ConflictError{Reason: domain.ReasonPayloadMismatch}, http.StatusUnprocessableEntity, string(domain.ReasonPayloadMismatch)},
		{"internal", domain.InternalError{Msg: "broken"}, http.StatusInternalServerError, ""},
		{"unknown", errors.New("db down"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := stubBookingService{reserve: func(string, *request.ReserveSeatRequest) (*usecase.ReserveResult, error) {
				return nil, tt.err
			}}
			req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			bookingRouter(svc).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			env := decode(t, rec)
			if env.Status {
				t.Fatal("error response has status=true")
			}
			if tt.wantReason != "" && env.Errors["reason"] != tt.wantReason {
				t.Fatalf("reason = %q, want %q", env.Errors["reason"], tt.wantReason)
			}
			if tt.wantStatus == http.StatusInternalServerError && strings.Contains(env.Message, "db down") {
				t.Fatal("internal error leaked to client")
			}
		})
	}
}

func TestReserveSeatValidationFields(t *testing.T) {
	svc := stubBookingService{reserve: func(string, *request.ReserveSeatRequest) (*usecase.ReserveResult, error) {
		return nil, domain.ValidationError{Msg: "validation failed", Fields: map[string]string{"seat_id": "seat_id is required"}}
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	bookingRouter(svc).ServeHTTP(rec, req)

	if env := decode(t, rec); env.Errors["seat_id"] == "" {
		t.Fatalf("errors = %v", env.Errors)
	}
}

func TestReserveSeatMalformedBody(t *testing.T) {
	svc := stubBookingService{reserve: func(string, *request.ReserveSeatRequest) (*usecase.ReserveResult, error) {
		t.Fatal("service called with malformed body")
		return nil, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(`{"seat_id":`))
	rec := httptest.NewRecorder()
	bookingRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetBookingUsesPathParam(t *testing.T) {
	svc := stubBookingService{get: func(id string) (*response.BookingDetailResponse, error) {
		if id != "b-42" {
			return nil, domain.NotFoundError{Resource: "booking", ID: id}
		}
		return &response.BookingDetailResponse{BookingResponse: response.BookingResponse{ID: id}}, nil
	}}

	rec := httptest.NewRecorder()
	bookingRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bookings/b-42", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	bookingRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bookings/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
