// Package httpapi exposes the dispatch, quoting and payment operations over
// REST plus the provider WebSocket channel.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/example/roadside-dispatch/internal/booking"
	"github.com/example/roadside-dispatch/internal/dispatch"
	"github.com/example/roadside-dispatch/internal/geo"
	"github.com/example/roadside-dispatch/internal/ingest"
	"github.com/example/roadside-dispatch/internal/models"
	"github.com/example/roadside-dispatch/internal/observability"
	"github.com/example/roadside-dispatch/internal/payments"
	"github.com/example/roadside-dispatch/internal/storage"
)

type Server struct {
	Booking     *booking.Service
	Coordinator *dispatch.Coordinator
	Payments    *payments.Service
	Notifier    *dispatch.Notifier
	Geo         geo.Index
	Producer    *ingest.KafkaProducer // optional
	WSReg       *dispatch.WSRegistry
	Store       storage.RequestStore

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(bk *booking.Service, co *dispatch.Coordinator, pay *payments.Service,
	nt *dispatch.Notifier, g geo.Index, producer *ingest.KafkaProducer,
	wsreg *dispatch.WSRegistry, store storage.RequestStore, logger *slog.Logger) *Server {
	s := &Server{
		Booking:     bk,
		Coordinator: co,
		Payments:    pay,
		Notifier:    nt,
		Geo:         g,
		Producer:    producer,
		WSReg:       wsreg,
		Store:       store,
		logger:      logger,
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/bookings", s.handleCreateBooking).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{id}", s.handleGetBooking).Methods("GET")
	s.mux.HandleFunc("/api/v1/bookings/{id}/cancel", s.handleCancelBooking).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{id}/dispatch", s.handleTriggerDispatch).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{id}/status", s.handleProviderStatus).Methods("POST")
	s.mux.HandleFunc("/api/v1/quotes/{id}", s.handleGetQuote).Methods("GET")
	s.mux.HandleFunc("/api/v1/quotes/{id}/accept", s.handleAcceptQuote).Methods("POST")
	s.mux.HandleFunc("/api/v1/quotes/{id}/reject", s.handleRejectQuote).Methods("POST")
	s.mux.HandleFunc("/api/v1/quotes/{id}/finalize", s.handleFinalizeQuote).Methods("POST")
	s.mux.HandleFunc("/api/v1/payments/confirm", s.handleConfirmPayment).Methods("POST")
	s.mux.HandleFunc("/internal/provider/locations", s.handleProviderLocation).Methods("POST")
	s.mux.HandleFunc("/internal/iot/pair", s.handleDevicePair).Methods("POST")
	s.mux.HandleFunc("/internal/iot/telemetry", s.handleTelemetry).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/providers/{provider_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type createBookingRequest struct {
	VehicleID    string  `json:"vehicle_id"`
	VehicleClass string  `json:"vehicle_class"`
	ServiceType  string  `json:"service_type"`
	Priority     string  `json:"priority"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Notes        string  `json:"notes"`
	Source       string  `json:"source"`
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r, models.RoleBooker)
	if !ok {
		return
	}
	var in createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := s.Booking.CreateBooking(r.Context(), booking.CreateBookingInput{
		Booker:       actor,
		VehicleID:    in.VehicleID,
		VehicleClass: models.VehicleClass(in.VehicleClass),
		ServiceType:  models.ServiceType(in.ServiceType),
		Priority:     models.Priority(in.Priority),
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Notes:        in.Notes,
		Source:       models.Source(in.Source),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.Coordinator.TriggerDispatch(r.Context(), req.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Notifier.Emit(r.Context(), result.Events)

	writeJSON(w, http.StatusCreated, map[string]any{"request": req, "dispatch": result})
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	req, err := s.Store.GetRequest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r, models.RoleBooker)
	if !ok {
		return
	}
	req, err := s.Booking.Cancel(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleTriggerDispatch(w http.ResponseWriter, r *http.Request) {
	result, err := s.Coordinator.TriggerDispatch(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Notifier.Emit(r.Context(), result.Events)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r, models.RoleProvider)
	if !ok {
		return
	}
	var in struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := s.Coordinator.UpdateProviderStatus(r.Context(),
		actor, mux.Vars(r)["id"], models.RequestStatus(in.Status))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := s.Store.GetQuote(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleAcceptQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r, models.RoleBooker)
	if !ok {
		return
	}
	quote, err := s.Payments.AcceptQuote(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleRejectQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r, models.RoleBooker)
	if !ok {
		return
	}
	quote, err := s.Payments.RejectQuote(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type sparePartInput struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func (s *Server) handleFinalizeQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r, models.RoleProvider)
	if !ok {
		return
	}
	var in struct {
		SpareParts []sparePartInput `json:"spare_parts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	parts := make([]models.SparePart, 0, len(in.SpareParts))
	for _, p := range in.SpareParts {
		parts = append(parts, models.SparePart{Name: p.Name, Price: p.Price})
	}
	quote, err := s.Payments.FinalizeQuote(r.Context(), actor, mux.Vars(r)["id"], parts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, events, err := s.Payments.ConfirmPayment(r.Context(), in.RequestID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Notifier.Emit(r.Context(), events)
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleProviderLocation(w http.ResponseWriter, r *http.Request) {
	var p models.Provider
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.ID == "" || p.Loc == nil {
		http.Error(w, "id and loc required", http.StatusBadRequest)
		return
	}
	p.Available = true
	if s.Producer != nil {
		if err := s.Producer.PublishLocation(r.Context(), p); err != nil {
			s.logger.Warn("location publish failed", "provider_id", p.ID, "error", err)
		}
	}
	s.Geo.Upsert(p)
	observability.ProvidersOnline.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDevicePair(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceID string `json:"device_id"`
		BookerID string `json:"booker_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.DeviceID == "" || in.BookerID == "" {
		http.Error(w, "device_id and booker_id required", http.StatusBadRequest)
		return
	}
	s.Booking.Devices.Pair(in.DeviceID, in.BookerID)
	w.WriteHeader(http.StatusNoContent)
}

// handleTelemetry receives panic-button heartbeats. A non-zero button id
// opens an emergency booking and dispatches it immediately.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceID  string  `json:"device_id"`
		Button    int     `json:"button"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Battery   int     `json:"battery"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.Booking.Devices.RecordTelemetry(in.DeviceID, in.Latitude, in.Longitude, in.Battery)
	if in.Button == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	req, err := s.Booking.HandlePanicButton(r.Context(), in.DeviceID, in.Button, in.Latitude, in.Longitude)
	if err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.Coordinator.TriggerDispatch(r.Context(), req.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Notifier.Emit(r.Context(), result.Events)
	writeJSON(w, http.StatusCreated, map[string]any{"request": req, "dispatch": result})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["provider_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
	go s.wsReadLoop(id, conn)
}

// wsReadLoop drains inbound frames until the peer goes away, then evicts the
// session so pushes stop targeting a dead connection.
func (s *Server) wsReadLoop(id string, conn *websocket.Conn) {
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.WSReg.Remove(id, conn)
			return
		}
	}
}

// requireActor returns the caller identity the middleware resolved from the
// request headers, enforcing the role the endpoint expects.
func (s *Server) requireActor(w http.ResponseWriter, r *http.Request, role models.ActorRole) (models.Actor, bool) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "X-Actor-ID header required"})
		return models.Actor{}, false
	}
	if actor.Role != role {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "role " + string(actor.Role) + " not allowed here"})
		return models.Actor{}, false
	}
	return actor, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	var serr *models.InvalidStateError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.As(err, &serr):
		writeJSON(w, http.StatusConflict, map[string]string{"error": serr.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { return uuid.NewString() }
