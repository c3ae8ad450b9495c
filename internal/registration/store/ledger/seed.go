package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"racereg/internal/registration/models"
	id "racereg/pkg/domain"
)

// Catalogue writes the race data the ledger reads for eligibility and
// ownership checks. The race catalogue service owns it in production; the
// ledgers implement it for seeding and tests.
type Catalogue interface {
	PutRace(ctx context.Context, r *models.Race) error
	PutDistance(ctx context.Context, d *models.Distance) error
}

// PutRace stores or replaces a race.
func (s *InMemory) PutRace(_ context.Context, r *models.Race) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.races[cp.ID] = &cp
	return nil
}

// PutDistance stores or replaces a distance.
func (s *InMemory) PutDistance(_ context.Context, d *models.Distance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.distances[cp.ID] = &cp
	return nil
}

func (s *Postgres) PutRace(ctx context.Context, r *models.Race) error {
	query := `
		INSERT INTO races (id, organizer_id, name, status, race_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			organizer_id = EXCLUDED.organizer_id,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			race_date = EXCLUDED.race_date
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(r.ID), uuid.UUID(r.OrganizerID), r.Name, string(r.Status), r.RaceDate)
	if err != nil {
		return fmt.Errorf("put race: %w", err)
	}
	return nil
}

func (s *Postgres) PutDistance(ctx context.Context, d *models.Distance) error {
	query := `
		INSERT INTO race_distances (id, race_id, name, max_participants, start_time, registration_fee)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			max_participants = EXCLUDED.max_participants,
			start_time = EXCLUDED.start_time,
			registration_fee = EXCLUDED.registration_fee
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID), uuid.UUID(d.RaceID), d.Name, d.MaxParticipants, d.StartTime, d.Fee.MinorUnits())
	if err != nil {
		return fmt.Errorf("put distance: %w", err)
	}
	return nil
}

// SeedDemoRace creates an approved race with a 5K and a 21K distance for local
// development.
func SeedDemoRace(ctx context.Context, c Catalogue, organizerID id.UserID, now time.Time) (*models.Race, []*models.Distance, error) {
	raceDay := now.AddDate(0, 1, 0).Truncate(24 * time.Hour).Add(5 * time.Hour)
	race := &models.Race{
		ID:          id.RaceID(uuid.New()),
		OrganizerID: organizerID,
		Name:        "Demo City Marathon",
		Status:      models.RaceStatusApproved,
		RaceDate:    raceDay,
	}
	if err := c.PutRace(ctx, race); err != nil {
		return nil, nil, err
	}

	distances := []*models.Distance{
		{ID: id.DistanceID(uuid.New()), RaceID: race.ID, Name: "5K", MaxParticipants: 200, StartTime: raceDay.Add(time.Hour), Fee: models.VND(250000)},
		{ID: id.DistanceID(uuid.New()), RaceID: race.ID, Name: "21K", MaxParticipants: 100, StartTime: raceDay, Fee: models.VND(650000)},
	}
	for _, d := range distances {
		if err := c.PutDistance(ctx, d); err != nil {
			return nil, nil, err
		}
	}
	return race, distances, nil
}
