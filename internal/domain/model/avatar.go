package model

import "time"

// Avatar is a therapy persona users converse with. SystemPrompt frames every
// AI call made on the persona's behalf.
type Avatar struct {
	ID           string
	Name         string
	Specialty    string
	SystemPrompt string
	Model        string // preferred AI model, empty means provider default
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
