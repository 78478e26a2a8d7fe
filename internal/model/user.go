package model

import "time"

// User is a registered honeypot address.
// An address is created once, when a site registration is requested, and is
// never modified afterwards.
type User struct {
	// ID is the unique user ID assigned by the store.
	ID int64 `json:"id"`

	// Email is the generated address. It is globally unique.
	Email string `json:"email"`

	// RegistrationSite is the human-readable name of the site the address was given to.
	RegistrationSite string `json:"registrationSite"`

	// RegistrationURL is the URL of the page where the address was used.
	RegistrationURL string `json:"registrationUrl"`

	// RegisteredAt is when the address was created.
	RegisteredAt time.Time `json:"registeredAt"`
}
