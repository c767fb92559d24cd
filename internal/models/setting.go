package models

import "time"

// Setting is one persisted key/value pair. The value is a JSON document;
// the set of valid keys is enumerated by the store package.
type Setting struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}
