package models

import (
	"time"

	"github.com/guregu/null/v6"
)

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailure = "failure"
)

type RunHistory struct {
	Id           string
	Source       string
	StartDate    time.Time
	EndDate      time.Time
	SymbolCount  int
	Status       string
	ErrorMessage null.String
	StartedAt    time.Time
	FinishedAt   null.Time
}

// SymbolMetadata tracks when a symbol's price history was last pulled from a source
type SymbolMetadata struct {
	Symbol        string
	Source        string
	LastRefreshed time.Time
}
