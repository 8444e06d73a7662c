package services

import (
	"context"
	"fmt"
	"strings"

	"chargelog/internal/core"
	"chargelog/internal/photo"
)

func (s *LogService) ListVehicles(ctx context.Context) ([]core.Vehicle, error) {
	vs, err := s.store.ListVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return vs, nil
}

// DefaultVehicle returns the default vehicle; ok is false when none is set.
func (s *LogService) DefaultVehicle(ctx context.Context) (v core.Vehicle, ok bool, err error) {
	id, err := s.store.DefaultVehicleID(ctx)
	if err != nil {
		return core.Vehicle{}, false, fmt.Errorf("default vehicle: %w", err)
	}
	if id == "" {
		return core.Vehicle{}, false, nil
	}
	v, err = s.store.GetVehicle(ctx, id)
	if err != nil {
		return core.Vehicle{}, false, fmt.Errorf("get vehicle %s: %w", id, err)
	}
	return v, true, nil
}

// AddVehicle stores a new vehicle. The name must be unique ignoring case and
// the purchase date defaults to today.
func (s *LogService) AddVehicle(ctx context.Context, v core.Vehicle) (core.Vehicle, error) {
	v.Name = strings.TrimSpace(v.Name)
	if err := v.Validate(); err != nil {
		return core.Vehicle{}, invalid(err)
	}
	if err := s.checkVehicleName(ctx, v); err != nil {
		return core.Vehicle{}, err
	}
	if v.PurchaseDate.IsZero() {
		v.PurchaseDate = core.DateOf(s.now())
	}
	v.ID = core.NewID()
	v.CreatedAt = s.now()
	v.IsDefault = false
	if err := s.store.AddVehicle(ctx, v); err != nil {
		return core.Vehicle{}, fmt.Errorf("save vehicle: %w", err)
	}
	s.changed(ctx, "vehicle created")
	return v, nil
}

// UpdateVehicle changes name, photo and purchase date of a vehicle. An
// empty photo or purchase date keeps the stored one.
func (s *LogService) UpdateVehicle(ctx context.Context, v core.Vehicle) (core.Vehicle, error) {
	existing, err := s.store.GetVehicle(ctx, v.ID)
	if err != nil {
		return core.Vehicle{}, fmt.Errorf("get vehicle %s: %w", v.ID, err)
	}
	v.Name = strings.TrimSpace(v.Name)
	if err := v.Validate(); err != nil {
		return core.Vehicle{}, invalid(err)
	}
	if err := s.checkVehicleName(ctx, v); err != nil {
		return core.Vehicle{}, err
	}
	if v.PurchaseDate.IsZero() {
		v.PurchaseDate = existing.PurchaseDate
	}
	if v.ImageURL == "" {
		v.ImageURL = existing.ImageURL
	}
	v.CreatedAt = existing.CreatedAt
	v.IsDefault = existing.IsDefault
	if err := s.store.UpdateVehicle(ctx, v); err != nil {
		return core.Vehicle{}, fmt.Errorf("update vehicle %s: %w", v.ID, err)
	}
	s.changed(ctx, "vehicle updated")
	return v, nil
}

// SetVehiclePhoto resizes an uploaded picture and stores it on the vehicle.
func (s *LogService) SetVehiclePhoto(ctx context.Context, id string, data []byte, contentType string) (core.Vehicle, error) {
	v, err := s.store.GetVehicle(ctx, id)
	if err != nil {
		return core.Vehicle{}, fmt.Errorf("get vehicle %s: %w", id, err)
	}
	uri, err := photo.Resize(data, contentType)
	if err != nil {
		return core.Vehicle{}, invalid(err)
	}
	v.ImageURL = uri
	if err := s.store.UpdateVehicle(ctx, v); err != nil {
		return core.Vehicle{}, fmt.Errorf("update vehicle %s: %w", id, err)
	}
	s.changed(ctx, "vehicle photo")
	return v, nil
}

// DeleteVehicle removes a vehicle. Deleting the default vehicle leaves no
// default; records keep their vehicle ID.
func (s *LogService) DeleteVehicle(ctx context.Context, id string) error {
	if err := s.store.DeleteVehicle(ctx, id); err != nil {
		return fmt.Errorf("delete vehicle %s: %w", id, err)
	}
	s.changed(ctx, "vehicle deleted")
	return nil
}

// SetDefaultVehicle makes id the only default vehicle.
func (s *LogService) SetDefaultVehicle(ctx context.Context, id string) error {
	if err := s.store.SetDefaultVehicle(ctx, id); err != nil {
		return fmt.Errorf("set default vehicle %s: %w", id, err)
	}
	s.changed(ctx, "default vehicle")
	return nil
}

func (s *LogService) checkVehicleName(ctx context.Context, v core.Vehicle) error {
	vs, err := s.store.ListVehicles(ctx)
	if err != nil {
		return fmt.Errorf("list vehicles: %w", err)
	}
	for _, other := range vs {
		if other.ID != v.ID && strings.EqualFold(other.Name, v.Name) {
			return invalid(core.ErrDuplicateVehicleName)
		}
	}
	return nil
}
