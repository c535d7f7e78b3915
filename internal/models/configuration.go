package models

import "time"

// ConfigurationType tags how a stored value is parsed. Every IOTD_* key is
// an INTEGER.
type ConfigurationType string

const ConfigurationTypeInteger ConfigurationType = "INTEGER"

// Configuration is one BackendConfig override row.
type Configuration struct {
	Key         string            `db:"key" json:"key"`
	Value       string            `db:"value" json:"value"`
	Type        ConfigurationType `db:"type" json:"type"`
	Description *string           `db:"description" json:"description,omitempty"`
	UpdatedBy   *string           `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}
