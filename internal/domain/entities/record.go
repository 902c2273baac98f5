// Package entities defines the core domain models for the mutual-aid map:
// the per-identity user record, the merge-write patch applied to it, and the
// viewport/identity/preference value types. These live in the innermost
// layer of the architecture and have no dependencies on storage or HTTP.
package entities

import (
	"time"

	"aidmap/internal/geo"
)

// Volunteer identifies someone who committed to help a needy record.
// Membership in a record's volunteer set is keyed by ID.
type Volunteer struct {
	ID     string `json:"id" bson:"id"`
	Name   string `json:"name" bson:"name"`
	Mobile string `json:"mobile" bson:"mobile"`
}

// UserRecord is the single document kept per registered identity, keyed by
// the identity id. A record is "needy" while Situation is set and ResolvedAt
// is not; it is a "volunteer" record while Offer is set. The two are
// independent — one identity may be both at once.
//
// Geohash is always the encoding of (Lat, Lng) at the time of the last
// write; RecordPatch.SetLocation keeps the three fields moving together.
type UserRecord struct {
	ID         string      `json:"id" bson:"_id"`
	Name       string      `json:"name,omitempty" bson:"name,omitempty"`
	Mobile     string      `json:"mobile,omitempty" bson:"mobile,omitempty"`
	Lat        float64     `json:"lat" bson:"lat"`
	Lng        float64     `json:"lng" bson:"lng"`
	Geohash    string      `json:"geohash" bson:"geohash"`
	Situation  *string     `json:"situation,omitempty" bson:"situation,omitempty"`
	Offer      *string     `json:"offer,omitempty" bson:"offer,omitempty"`
	Volunteers []Volunteer `json:"volunteers,omitempty" bson:"volunteers,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at" bson:"updatedAt"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty" bson:"resolvedAt,omitempty"`
}

// IsNeedy reports whether the record has an open, unresolved situation.
// A resolved record is never needy regardless of its situation text.
func (r *UserRecord) IsNeedy() bool {
	return r.Situation != nil && *r.Situation != "" && r.ResolvedAt == nil
}

// IsVolunteer reports whether the record carries an active help offer.
func (r *UserRecord) IsVolunteer() bool {
	return r.Offer != nil && *r.Offer != ""
}

// HasVolunteer reports whether the given identity already committed to this
// record.
func (r *UserRecord) HasVolunteer(id string) bool {
	for _, v := range r.Volunteers {
		if v.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Stores hand clones to subscribers and query
// callers so no one mutates shared state.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Situation != nil {
		s := *r.Situation
		out.Situation = &s
	}
	if r.Offer != nil {
		o := *r.Offer
		out.Offer = &o
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		out.ResolvedAt = &t
	}
	if r.Volunteers != nil {
		out.Volunteers = make([]Volunteer, len(r.Volunteers))
		copy(out.Volunteers, r.Volunteers)
	}
	return &out
}

// RecordPatch is a merge-write: nil fields are left untouched on the stored
// document. The two markers are explicit so every mutation site states its
// intent instead of smuggling sentinels through a generic field map:
//
//   - DeleteOffer removes only the Offer field.
//   - AddVolunteer appends to the Volunteers set with set-union semantics
//     (appending an already-present ID is a no-op).
//
// Stores assign UpdatedAt on every applied patch; it is not client-settable.
type RecordPatch struct {
	Name         *string
	Mobile       *string
	Lat          *float64
	Lng          *float64
	Geohash      *string
	Situation    *string
	Offer        *string
	ResolvedAt   *time.Time
	DeleteOffer  bool
	AddVolunteer *Volunteer
}

// SetLocation sets Lat, Lng, and the derived Geohash together, so a patch
// can never move a record without re-keying it.
func (p *RecordPatch) SetLocation(lat, lng float64) {
	h := geo.Encode(lat, lng, geo.RecordPrecision)
	p.Lat = &lat
	p.Lng = &lng
	p.Geohash = &h
}

// IsEmpty reports whether applying the patch would change nothing.
func (p *RecordPatch) IsEmpty() bool {
	return p.Name == nil && p.Mobile == nil && p.Lat == nil && p.Lng == nil &&
		p.Geohash == nil && p.Situation == nil && p.Offer == nil &&
		p.ResolvedAt == nil && !p.DeleteOffer && p.AddVolunteer == nil
}
