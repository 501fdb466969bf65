package shifts

import "strings"

// Shift is a single offered work slot as scraped from the portal.
//
// Allowed reflects whether the portal currently lets the user take the
// slot. It may flip between polls while the slot stays "the same" shift,
// so it is deliberately excluded from the identity key.
type Shift struct {
	Date        string `json:"date"` // DD.MM.YYYY
	TimeFrom    string `json:"time_from"`
	TimeTo      string `json:"time_to"`
	Responsible string `json:"responsible"`
	Allowed     bool   `json:"allowed"`
}

// Key returns the identity key used to recognize the same shift across
// polling cycles: (date, time_from, time_to, responsible).
func (s Shift) Key() string {
	return strings.TrimSpace(s.Date) + "|" +
		strings.TrimSpace(s.TimeFrom) + "|" +
		strings.TrimSpace(s.TimeTo) + "|" +
		strings.TrimSpace(s.Responsible)
}

// Batch is one portal fetch: the open invitations plus the shifts the
// user already holds.
type Batch struct {
	Invited   []Shift `json:"invited"`
	Scheduled []Shift `json:"scheduled"`
}

// Result classifies a fetched batch against the previous cycle.
//
// Old and New never overlap by identity key, and both are subsets of the
// latest invited batch: a shift the portal stopped offering is dropped,
// never retained. Scheduled is replaced wholesale every cycle.
type Result struct {
	Old       []Shift `json:"oldShifts"`
	New       []Shift `json:"newShifts"`
	Scheduled []Shift `json:"scheduledShifts"`

	OldCount       int `json:"oldShiftsCount"`
	NewCount       int `json:"newShiftsCount"`
	ScheduledCount int `json:"scheduledShiftsCount"`
}

// Empty returns the all-empty result a user starts with after
// registration, before the first check ran.
func Empty() Result {
	return Result{
		Old:       []Shift{},
		New:       []Shift{},
		Scheduled: []Shift{},
	}
}
