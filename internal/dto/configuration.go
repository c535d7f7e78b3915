package dto

// ConfigurationItem represents a BackendConfig entry exposed via API.
type ConfigurationItem struct {
	Key         string `json:"key"`
	Value       int    `json:"value"`
	Default     int    `json:"default"`
	Overridden  bool   `json:"overridden"`
	Description string `json:"description"`
}

// IotdConfigResponse is the full BackendConfig snapshot.
type IotdConfigResponse struct {
	Items         []ConfigurationItem `json:"items"`
	Values        map[string]int      `json:"values"`
	QuotaTimezone string              `json:"quota_timezone"`
}

// UpdateConfigurationRequest describes one override.
type UpdateConfigurationRequest struct {
	Key   string `json:"key" validate:"required,startswith=IOTD_"`
	Value *int   `json:"value" validate:"required,min=0"`
}

// BulkUpdateConfigurationRequest holds overrides and keys to reset to their
// defaults.
type BulkUpdateConfigurationRequest struct {
	Items []UpdateConfigurationRequest `json:"items" validate:"omitempty,dive"`
	Reset []string                     `json:"reset" validate:"omitempty,dive,startswith=IOTD_"`
}
