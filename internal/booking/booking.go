// Package booking is the intake boundary: it turns customer, helpline and
// IoT events into persisted service requests ready for dispatch.
package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/roadside-dispatch/internal/models"
	"github.com/example/roadside-dispatch/internal/storage"
)

type Service struct {
	Store   storage.RequestStore
	Devices *DeviceRegistry
	Logger  *slog.Logger
	Now     func() time.Time
}

func NewService(store storage.RequestStore, devices *DeviceRegistry, logger *slog.Logger) *Service {
	return &Service{Store: store, Devices: devices, Logger: logger, Now: time.Now}
}

type CreateBookingInput struct {
	Booker       models.Actor
	VehicleID    string
	VehicleClass models.VehicleClass
	ServiceType  models.ServiceType // empty means classify from notes
	Priority     models.Priority
	Latitude     float64
	Longitude    float64
	Notes        string
	Source       models.Source
}

// CreateBooking validates intake and persists a request in
// PENDING_DISPATCH. When no explicit service type is given, the triage
// classifier supplies one from the notes.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.ServiceRequest, error) {
	if in.Booker.Role != models.RoleBooker || in.Booker.ID == "" {
		return nil, &models.ValidationError{Field: "booker", Reason: "booker identity required"}
	}
	if in.Latitude < -90 || in.Latitude > 90 {
		return nil, &models.ValidationError{Field: "latitude", Reason: "out of range"}
	}
	if in.Longitude < -180 || in.Longitude > 180 {
		return nil, &models.ValidationError{Field: "longitude", Reason: "out of range"}
	}

	serviceType := in.ServiceType
	priority := in.Priority
	if serviceType == "" {
		t := Classify(in.Notes)
		serviceType = t.ServiceType
		if priority == "" {
			priority = t.Priority
		}
		s.Logger.Info("triage classified booking",
			"service_type", serviceType, "priority", priority, "confidence", t.Confidence)
	} else if !models.ValidServiceType(serviceType) {
		return nil, &models.ValidationError{Field: "service_type", Reason: "unknown service type " + string(serviceType)}
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	source := in.Source
	if source == "" {
		source = models.SourceApp
	}

	now := s.Now()
	req := &models.ServiceRequest{
		ID:           uuid.NewString(),
		BookerID:     in.Booker.ID,
		VehicleID:    in.VehicleID,
		VehicleClass: in.VehicleClass,
		ServiceType:  serviceType,
		Status:       models.StatusPendingDispatch,
		Priority:     priority,
		Location:     models.Coord{Lat: in.Latitude, Lon: in.Longitude},
		Notes:        in.Notes,
		Source:       source,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	s.Logger.Info("booking created", "request_id", req.ID, "service_type", req.ServiceType, "source", req.Source)
	return req, nil
}

// Cancel marks a request cancelled on behalf of its booker. Allowed from
// any non-terminal state.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, requestID string) (*models.ServiceRequest, error) {
	req, err := s.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleBooker && req.BookerID != actor.ID {
		return nil, &models.ValidationError{Field: "booker", Reason: "request belongs to another booker"}
	}
	cancelled, err := s.Store.CancelRequest(ctx, requestID)
	if err == storage.ErrTerminalState {
		return nil, &models.InvalidStateError{Entity: "request " + requestID, From: string(req.Status), To: string(models.StatusCancelled)}
	}
	return cancelled, err
}
