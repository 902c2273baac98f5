package services

import (
	"aidmap/internal/domain/entities"
)

// Classification is the partition of a query result into the two marker
// sets. A record with both an open situation and an active offer appears in
// both lists — they represent different intents of the same identity and
// render as two distinct markers.
type Classification struct {
	Needy      []*entities.UserRecord `json:"needy"`
	Volunteers []*entities.UserRecord `json:"volunteers"`
}

// Classify partitions records by the needy/volunteer predicates, applying
// the visibility toggles. It is a pure function; displayed counts are the
// lengths of the returned lists, not of the input.
func Classify(records []*entities.UserRecord, prefs entities.Preferences) Classification {
	var c Classification
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if prefs.ShowNeedy && rec.IsNeedy() {
			c.Needy = append(c.Needy, rec)
		}
		if prefs.ShowVolunteers && rec.IsVolunteer() {
			c.Volunteers = append(c.Volunteers, rec)
		}
	}
	return c
}
