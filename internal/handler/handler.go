// Package handler содержит HTTP-обработчики API сервиса бронирования.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sivanpabraj/studio-m/internal/middleware"
	"github.com/sivanpabraj/studio-m/internal/model"
	"github.com/sivanpabraj/studio-m/internal/ratelimit"
	"github.com/sivanpabraj/studio-m/internal/repository"
	"github.com/sivanpabraj/studio-m/internal/service"
	"github.com/sivanpabraj/studio-m/internal/session"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	HandleEvent(ctx context.Context, actorID int64, class ratelimit.Class, input string) (*service.EventResult, error)
	MyReservations(ctx context.Context, actorID int64) ([]model.Reservation, error)
	ReservationByCode(ctx context.Context, actorID int64, code string) (*model.Reservation, error)
	SearchReservations(ctx context.Context, actorID int64, query string) ([]model.Reservation, error)
	UpdateReservationStatus(ctx context.Context, actorID int64, code string, booking model.BookingStatus, payment model.PaymentStatus) error
	UpdatePaymentInfo(ctx context.Context, actorID int64, code string, status model.PaymentStatus, method, transactionID string) error
	AddAdmin(ctx context.Context, byActorID int64, a model.Admin) error
	Stats(ctx context.Context, actorID int64) (*model.Stats, error)
}

// Handler реализует HTTP-обработчики API сервиса бронирования.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

type validationResponse struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// writeError переводит ошибку бизнес-логики в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, err error, logMsg string, fields ...zap.Field) {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Field:  verr.Field,
			Reason: verr.Reason,
		})
	case errors.Is(err, service.ErrRateLimited):
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
	case errors.Is(err, service.ErrPermissionDenied):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case errors.Is(err, repository.ErrReservationNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, repository.ErrAdminExists):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	default:
		h.logger.Error(logMsg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetActorIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return 0, false
	}
	return id, true
}

type eventRequest struct {
	ActionClass string `json:"action_class"`
	Payload     string `json:"payload"`
}

// HandleEvent принимает одно событие диалога бронирования.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	class := ratelimit.ClassGeneral
	switch req.ActionClass {
	case "", "general":
	case "search":
		class = ratelimit.ClassSearch
	case "button":
		class = ratelimit.ClassButton
	default:
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	result, err := h.service.HandleEvent(r.Context(), id, class, strings.TrimSpace(req.Payload))
	if err != nil {
		h.writeError(w, err, "handle event error", zap.Int64("actorID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// MyReservations возвращает последние брони текущего актора.
func (h *Handler) MyReservations(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}

	reservations, err := h.service.MyReservations(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "list reservations error", zap.Int64("actorID", id))
		return
	}
	if len(reservations) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, toReservationResponses(reservations))
}

// GetReservation возвращает бронь по коду.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}

	code := strings.ToUpper(chi.URLParam(r, "code"))
	res, err := h.service.ReservationByCode(r.Context(), id, code)
	if err != nil {
		h.writeError(w, err, "get reservation error", zap.String("code", code))
		return
	}

	h.writeJSON(w, http.StatusOK, toReservationResponse(*res))
}

// SearchReservations ищет брони по коду, имени или телефону.
func (h *Handler) SearchReservations(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	reservations, err := h.service.SearchReservations(r.Context(), id, query)
	if err != nil {
		h.writeError(w, err, "search reservations error", zap.Int64("actorID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, toReservationResponses(reservations))
}

type statusRequest struct {
	BookingStatus model.BookingStatus `json:"booking_status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
}

// UpdateStatus меняет статусы брони.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.BookingStatus == "" && req.PaymentStatus == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	code := strings.ToUpper(chi.URLParam(r, "code"))
	if err := h.service.UpdateReservationStatus(r.Context(), id, code, req.BookingStatus, req.PaymentStatus); err != nil {
		h.writeError(w, err, "update status error", zap.String("code", code))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type paymentRequest struct {
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	Method        string              `json:"method"`
	TransactionID string              `json:"transaction_id"`
}

// UpdatePayment фиксирует сведения об оплате брони.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.PaymentStatus == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	code := strings.ToUpper(chi.URLParam(r, "code"))
	if err := h.service.UpdatePaymentInfo(r.Context(), id, code, req.PaymentStatus, req.Method, req.TransactionID); err != nil {
		h.writeError(w, err, "update payment error", zap.String("code", code))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type adminRequest struct {
	ActorID  int64  `json:"actor_id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// AddAdmin выдаёт права администратора.
func (h *Handler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}

	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ActorID == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.AddAdmin(r.Context(), id, model.Admin{
		ActorID:  req.ActorID,
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		h.writeError(w, err, "add admin error", zap.Int64("actorID", id))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetStats возвращает сводную статистику студии.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get stats error", zap.Int64("actorID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

type reservationResponse struct {
	Code          string              `json:"code"`
	ServiceType   model.ServiceType   `json:"service_type"`
	Spec          model.ServiceSpec   `json:"spec"`
	TotalCost     int64               `json:"total_cost"`
	DepositAmount int64               `json:"deposit_amount"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	BookingStatus model.BookingStatus `json:"booking_status"`
	CreatedAt     string              `json:"created_at"`
}

func toReservationResponse(res model.Reservation) reservationResponse {
	return reservationResponse{
		Code:          res.Code,
		ServiceType:   res.ServiceType,
		Spec:          res.Spec,
		TotalCost:     res.TotalCost,
		DepositAmount: res.DepositAmount,
		PaymentStatus: res.PaymentStatus,
		BookingStatus: res.BookingStatus,
		CreatedAt:     res.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toReservationResponses(list []model.Reservation) []reservationResponse {
	out := make([]reservationResponse, 0, len(list))
	for _, res := range list {
		out = append(out, toReservationResponse(res))
	}
	return out
}
