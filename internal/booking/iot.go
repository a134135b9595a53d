package booking

import (
	"context"
	"sync"
	"time"

	"github.com/example/roadside-dispatch/internal/models"
)

// Device is the last-known state of a paired panic-button unit.
type Device struct {
	DeviceID   string        `json:"device_id"`
	BookerID   string        `json:"booker_id"`
	Battery    int           `json:"battery"`
	LastLoc    *models.Coord `json:"last_loc,omitempty"`
	LastSignal time.Time     `json:"last_signal"`
	Active     bool          `json:"active"`
}

// DeviceRegistry tracks panic-button devices and their pairing. The device
// fleet is owned by the IoT collaborator; this registry caches the last
// telemetry the core saw.
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{devices: make(map[string]*Device)}
}

func (r *DeviceRegistry) Pair(deviceID, bookerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		d = &Device{DeviceID: deviceID}
		r.devices[deviceID] = d
	}
	d.BookerID = bookerID
}

func (r *DeviceRegistry) Get(deviceID string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

func (r *DeviceRegistry) RecordTelemetry(deviceID string, lat, lon float64, battery int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		d = &Device{DeviceID: deviceID}
		r.devices[deviceID] = d
	}
	d.LastLoc = &models.Coord{Lat: lat, Lon: lon}
	d.Battery = battery
	d.Active = true
	d.LastSignal = time.Now()
}

// Button identifiers on the two-button panic unit.
const (
	ButtonCommonFix   = 1
	ButtonMajorTowing = 2
)

// HandlePanicButton creates an emergency booking from a device button
// press: button 1 books a common fix at HIGH priority, button 2 a major tow
// at URGENT.
func (s *Service) HandlePanicButton(ctx context.Context, deviceID string, button int, lat, lon float64) (*models.ServiceRequest, error) {
	device, ok := s.Devices.Get(deviceID)
	if !ok {
		return nil, &models.ValidationError{Field: "device_id", Reason: "unknown device"}
	}
	if device.BookerID == "" {
		return nil, &models.ValidationError{Field: "device_id", Reason: "device is not paired"}
	}

	var serviceType models.ServiceType
	var priority models.Priority
	switch button {
	case ButtonCommonFix:
		serviceType = models.ServiceMechanic
		priority = models.PriorityHigh
	case ButtonMajorTowing:
		serviceType = models.ServiceTowing
		priority = models.PriorityUrgent
	default:
		return nil, &models.ValidationError{Field: "button", Reason: "unknown button id"}
	}

	return s.CreateBooking(ctx, CreateBookingInput{
		Booker:      models.BookerActor(device.BookerID),
		ServiceType: serviceType,
		Priority:    priority,
		Latitude:    lat,
		Longitude:   lon,
		Notes:       "IoT emergency: " + string(serviceType),
		Source:      models.SourceIoT,
	})
}
