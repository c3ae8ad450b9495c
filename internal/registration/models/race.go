package models

import (
	"fmt"
	"time"

	id "racereg/pkg/domain"
)

type RaceStatus string

const (
	RaceStatusPending   RaceStatus = "Pending"
	RaceStatusApproved  RaceStatus = "Approved"
	RaceStatusCancelled RaceStatus = "Cancelled"
	RaceStatusCompleted RaceStatus = "Completed"
)

// Race is read-only here; it is managed by the race catalogue.
type Race struct {
	ID          id.RaceID  `json:"id"`
	OrganizerID id.UserID  `json:"organizer_id"`
	Name        string     `json:"name"`
	Status      RaceStatus `json:"status"`
	RaceDate    time.Time  `json:"race_date"`
}

// IsOpen reports whether the race accepts registrations and bib assignment.
func (r *Race) IsOpen() bool { return r.Status == RaceStatusApproved }

func (r *Race) OwnedBy(organizerID id.UserID) bool { return r.OrganizerID == organizerID }

// Money is an amount in VND minor units (1 VND = 100), the unit the payment
// gateway expects.
type Money int64

// VND converts a whole-dong amount to Money.
func VND(dong int64) Money { return Money(dong * 100) }

func (m Money) MinorUnits() int64 { return int64(m) }

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d VND", int64(m)/100, int64(m)%100)
}

// Distance is a race category with its own capacity and fee.
type Distance struct {
	ID              id.DistanceID `json:"id"`
	RaceID          id.RaceID     `json:"race_id"`
	Name            string        `json:"name"`
	MaxParticipants int           `json:"max_participants"`
	StartTime       time.Time     `json:"start_time"`
	Fee             Money         `json:"fee"`
}

// HasStarted is true once now reaches the start time.
func (d *Distance) HasStarted(now time.Time) bool { return !d.StartTime.After(now) }

// Availability is the live capacity of a distance.
type Availability struct {
	DistanceID          id.DistanceID `json:"distance_id"`
	MaxParticipants     int           `json:"max_participants"`
	CurrentParticipants int           `json:"current_participants"`
	AvailableSlots      int           `json:"available_slots"`
	IsFull              bool          `json:"is_full"`
}

func NewAvailability(d *Distance, current int) Availability {
	available := d.MaxParticipants - current
	if available < 0 {
		available = 0
	}
	return Availability{
		DistanceID:          d.ID,
		MaxParticipants:     d.MaxParticipants,
		CurrentParticipants: current,
		AvailableSlots:      available,
		IsFull:              available == 0,
	}
}
