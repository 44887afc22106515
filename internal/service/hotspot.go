package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"wifiportal/internal/ids"
	"wifiportal/internal/models"
	"wifiportal/internal/repository"
)

type HotspotService struct {
	store repository.Store
	log   zerolog.Logger
}

func NewHotspotService(store repository.Store, log zerolog.Logger) *HotspotService {
	return &HotspotService{store: store, log: log}
}

type HotspotInput struct {
	Name     string
	Location string
	IPOrMAC  *string
	IsActive *bool
}

func (in HotspotInput) normalize() (HotspotInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	if in.Name == "" || in.Location == "" {
		return in, invalidf("name and location are required")
	}
	if in.IPOrMAC != nil {
		v := strings.TrimSpace(*in.IPOrMAC)
		if v == "" {
			in.IPOrMAC = nil
		} else {
			in.IPOrMAC = &v
		}
	}
	return in, nil
}

// List returns active hotspots, or all of them for admins asking for inactive ones too.
func (s *HotspotService) List(ctx context.Context, actor Actor, includeInactive bool) ([]models.Hotspot, error) {
	activeOnly := !(includeInactive && actor.IsAdmin())
	var hotspots []models.Hotspot
	err := withReadRetry(ctx, func(ctx context.Context) error {
		var err error
		hotspots, err = s.store.Repos().Hotspots.List(ctx, activeOnly)
		return err
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return hotspots, nil
}

func (s *HotspotService) Create(ctx context.Context, actor Actor, input HotspotInput) (models.Hotspot, error) {
	if !actor.IsAdmin() {
		return models.Hotspot{}, ErrUnauthorized
	}
	input, err := input.normalize()
	if err != nil {
		return models.Hotspot{}, err
	}

	hotspot := models.Hotspot{
		ID:       ids.New(),
		Name:     input.Name,
		Location: input.Location,
		IPOrMAC:  input.IPOrMAC,
		IsActive: input.IsActive == nil || *input.IsActive,
	}
	if err := s.store.Repos().Hotspots.Create(ctx, hotspot); err != nil {
		return models.Hotspot{}, unavailable(err)
	}
	s.log.Info().Str("hotspot_id", hotspot.ID).Str("name", hotspot.Name).Msg("hotspot created")
	return s.get(ctx, hotspot.ID)
}

func (s *HotspotService) Update(ctx context.Context, actor Actor, id string, input HotspotInput) (models.Hotspot, error) {
	if !actor.IsAdmin() {
		return models.Hotspot{}, ErrUnauthorized
	}
	input, err := input.normalize()
	if err != nil {
		return models.Hotspot{}, err
	}

	err = s.store.InTx(ctx, func(repos repository.Set) error {
		current, err := repos.Hotspots.GetByID(ctx, id)
		if err != nil {
			return err
		}
		current.Name = input.Name
		current.Location = input.Location
		current.IPOrMAC = input.IPOrMAC
		if input.IsActive != nil {
			current.IsActive = *input.IsActive
		}
		return repos.Hotspots.Update(ctx, current)
	})
	if err := hotspotErr(id, err); err != nil {
		return models.Hotspot{}, err
	}
	return s.get(ctx, id)
}

func (s *HotspotService) SetActive(ctx context.Context, actor Actor, id string, active bool) (models.Hotspot, error) {
	if !actor.IsAdmin() {
		return models.Hotspot{}, ErrUnauthorized
	}
	if err := hotspotErr(id, s.store.Repos().Hotspots.SetActive(ctx, id, active)); err != nil {
		return models.Hotspot{}, err
	}
	s.log.Info().Str("hotspot_id", id).Bool("is_active", active).Msg("hotspot status changed")
	return s.get(ctx, id)
}

func (s *HotspotService) Delete(ctx context.Context, actor Actor, id string) error {
	if !actor.IsAdmin() {
		return ErrUnauthorized
	}
	if err := hotspotErr(id, s.store.Repos().Hotspots.Delete(ctx, id)); err != nil {
		return err
	}
	s.log.Info().Str("hotspot_id", id).Msg("hotspot deleted")
	return nil
}

func (s *HotspotService) get(ctx context.Context, id string) (models.Hotspot, error) {
	hotspot, err := s.store.Repos().Hotspots.GetByID(ctx, id)
	if err := hotspotErr(id, err); err != nil {
		return models.Hotspot{}, err
	}
	return hotspot, nil
}

func hotspotErr(id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrHotspotNotFound) {
		return fmt.Errorf("%w: hotspot %s", ErrNotFound, id)
	}
	return unavailable(err)
}
