package model

import (
	"time"

	"github.com/mjkeeling/ember/internal/period"
)

type Habit struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Username  string         `json:"username"`
	Cadence   period.Cadence `json:"cadence"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type Completion struct {
	ID        int64     `json:"id"`
	PeriodKey string    `json:"period_key"`
	HabitName string    `json:"habit_name"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
