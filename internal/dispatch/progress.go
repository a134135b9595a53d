package dispatch

import (
	"context"
	"errors"

	"github.com/example/roadside-dispatch/internal/models"
	"github.com/example/roadside-dispatch/internal/storage"
)

// UpdateProviderStatus applies a provider-facing progress update
// (DISPATCHED -> ARRIVED -> SERVICE_IN_PROGRESS). COMPLETED is rejected
// here unconditionally: it is reachable only through payment confirmation.
func (c *Coordinator) UpdateProviderStatus(ctx context.Context, actor models.Actor, requestID string, newStatus models.RequestStatus) (*models.ServiceRequest, error) {
	if !models.ValidRequestStatus(newStatus) {
		return nil, &models.ValidationError{Field: "status", Reason: "unknown status " + string(newStatus)}
	}
	if newStatus == models.StatusCompleted {
		return nil, &models.ValidationError{Field: "status", Reason: "COMPLETED requires payment confirmation"}
	}

	req, err := c.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleProvider && req.ProviderID != actor.ID {
		return nil, &models.ValidationError{Field: "provider", Reason: "request assigned to another provider"}
	}
	if !models.CanTransition(req.Status, newStatus) {
		return nil, &models.InvalidStateError{Entity: "request " + requestID, From: string(req.Status), To: string(newStatus)}
	}

	updated, err := c.Store.UpdateRequestStatus(ctx, requestID, req.Status, newStatus)
	if errors.Is(err, storage.ErrStatusConflict) {
		return nil, &models.InvalidStateError{Entity: "request " + requestID, From: string(req.Status), To: string(newStatus)}
	}
	return updated, err
}
