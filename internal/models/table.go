package models

import "time"

type TableType struct {
	ID         int64     `yaml:"id" json:"id"`
	Name       string    `yaml:"name" json:"name"`
	HourlyRate Money     `yaml:"hourly_rate" json:"hourly_rate"`
	CreatedAt  time.Time `yaml:"-" json:"created_at"`
	UpdatedAt  time.Time `yaml:"-" json:"updated_at"`
}

type Table struct {
	ID          int64     `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	TableTypeID int64     `yaml:"table_type_id" json:"table_type_id"`
	Status      string    `yaml:"status" json:"status"` // available, occupied, maintenance
	CreatedAt   time.Time `yaml:"-" json:"created_at"`
	UpdatedAt   time.Time `yaml:"-" json:"updated_at"`
}

// Bookable reports whether the table's operational status allows new reservations.
func (t *Table) Bookable() bool {
	return t.Status == TableAvailable
}
