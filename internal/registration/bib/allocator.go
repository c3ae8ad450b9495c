// Package bib allocates race bib numbers.
//
// Numbers are derived from what is already persisted for the race, never from
// process state: the next bib is one past the highest numeric bib in use (or
// past the base when none is). Callers run Allocate inside the same
// transaction that writes the result.
package bib

import (
	"fmt"
	"strconv"
	"strings"

	"racereg/internal/registration/models"
)

// DefaultBase is the number the first bib of a race follows.
const DefaultBase = 1000

// Format renders n zero-padded to four digits.
func Format(n int) string {
	return fmt.Sprintf("%04d", n)
}

// Next returns max(numeric bibs in existing, base) + 1. Non-numeric bibs are
// ignored.
func Next(existing []string, base int) int {
	highest := base
	for _, b := range existing {
		n, err := strconv.Atoi(strings.TrimSpace(b))
		if err != nil || n < 0 {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1
}

// Allocate assigns consecutive bibs to regs in the given order, starting at
// Next(existing, base).
func Allocate(regs []*models.Registration, existing []string, base int) []models.BibAssignment {
	if len(regs) == 0 {
		return nil
	}
	n := Next(existing, base)
	out := make([]models.BibAssignment, 0, len(regs))
	for _, r := range regs {
		out = append(out, models.BibAssignment{RegistrationID: r.ID, BibNumber: Format(n)})
		n++
	}
	return out
}

// Summarize reports the size and range of a batch.
func Summarize(assignments []models.BibAssignment) models.BibAssignmentResult {
	if len(assignments) == 0 {
		return models.BibAssignmentResult{}
	}
	return models.BibAssignmentResult{
		Count:    len(assignments),
		FirstBib: assignments[0].BibNumber,
		LastBib:  assignments[len(assignments)-1].BibNumber,
	}
}
