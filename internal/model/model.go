package model

import "time"

type AccountKind string

const (
	KindUser     AccountKind = "user"
	KindHospital AccountKind = "hospital"
)

func (k AccountKind) Valid() bool {
	return k == KindUser || k == KindHospital
}

// BloodGroups lists every accepted blood group in display order.
var BloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

type Location struct {
	City  string `json:"city" bson:"city" validate:"required"`
	State string `json:"state" bson:"state" validate:"required"`
}

type Session struct {
	Token    string    `json:"token" bson:"token"`
	IssuedAt time.Time `json:"issuedAt" bson:"issuedAt"`
}

// Account is a registered donor ("user") or hospital. Sessions are only
// mutated through AddSession, RemoveSession and PruneSessions.
type Account struct {
	ID           string      `json:"id" bson:"_id"`
	Kind         AccountKind `json:"kind" bson:"kind"`
	Email        string      `json:"email" bson:"email"`
	PasswordHash string      `json:"-" bson:"passwordHash"`
	Phone        string      `json:"phone,omitempty" bson:"phone,omitempty"`
	Location     Location    `json:"location" bson:"location"`

	Name          string `json:"name,omitempty" bson:"name,omitempty"`
	BloodGroup    string `json:"bloodGroup,omitempty" bson:"bloodGroup,omitempty"`
	OrganDonation bool   `json:"organDonation" bson:"organDonation"`

	HospitalName       string `json:"hospitalName,omitempty" bson:"hospitalName,omitempty"`
	RegistrationNumber string `json:"registrationNumber,omitempty" bson:"registrationNumber,omitempty"`

	Sessions  []Session `json:"-" bson:"sessions"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

func (a *Account) AddSession(token string, issuedAt time.Time) {
	a.Sessions = append(a.Sessions, Session{Token: token, IssuedAt: issuedAt})
}

// RemoveSession drops every session carrying token and reports whether
// anything was removed.
func (a *Account) RemoveSession(token string) bool {
	kept := a.Sessions[:0]
	for _, s := range a.Sessions {
		if s.Token != token {
			kept = append(kept, s)
		}
	}
	removed := len(kept) != len(a.Sessions)
	a.Sessions = kept
	return removed
}

func (a *Account) HasSession(token string) bool {
	for _, s := range a.Sessions {
		if s.Token == token {
			return true
		}
	}
	return false
}

// PruneSessions removes sessions issued before cutoff and returns how many were dropped.
func (a *Account) PruneSessions(cutoff time.Time) int {
	kept := a.Sessions[:0]
	for _, s := range a.Sessions {
		if !s.IssuedAt.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	pruned := len(a.Sessions) - len(kept)
	a.Sessions = kept
	return pruned
}

// DisplayName is the donor's name or the hospital's name.
func (a *Account) DisplayName() string {
	if a.Kind == KindHospital {
		return a.HospitalName
	}
	return a.Name
}

// Donor is a volunteer entry in the public donor registry.
type Donor struct {
	ID         string    `json:"id" bson:"_id"`
	Name       string    `json:"name" bson:"name"`
	Email      string    `json:"email" bson:"email"`
	Phone      string    `json:"phone" bson:"phone"`
	BloodGroup string    `json:"bloodGroup" bson:"bloodGroup"`
	City       string    `json:"city" bson:"city"`
	State      string    `json:"state" bson:"state"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

type DonorFilter struct {
	BloodGroup string
	City       string
	State      string
}

// Matches applies the search semantics every store must share: exact blood
// group, case-insensitive city and state, empty fields match anything.
func (f DonorFilter) Matches(d *Donor) bool {
	if f.BloodGroup != "" && f.BloodGroup != d.BloodGroup {
		return false
	}
	if f.City != "" && !equalFold(f.City, d.City) {
		return false
	}
	if f.State != "" && !equalFold(f.State, d.State) {
		return false
	}
	return true
}

type EmergencyStatus string

const (
	EmergencyOpen     EmergencyStatus = "open"
	EmergencyResolved EmergencyStatus = "resolved"
)

type EmergencyRequest struct {
	ID         string          `json:"id" bson:"_id"`
	Name       string          `json:"name" bson:"name"`
	Phone      string          `json:"phone" bson:"phone"`
	BloodGroup string          `json:"bloodGroup" bson:"bloodGroup"`
	Units      int             `json:"units" bson:"units"`
	Hospital   string          `json:"hospital" bson:"hospital"`
	Location   Location        `json:"location" bson:"location"`
	Status     EmergencyStatus `json:"status" bson:"status"`
	CreatedAt  time.Time       `json:"createdAt" bson:"createdAt"`
	ResolvedAt *time.Time      `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
}
