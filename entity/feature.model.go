package entity

// Feature describes a single column of a feature group schema. It is a plain
// value object owned by the handle holding it.
type Feature struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	Description  string `json:"description,omitempty"`
	Primary      bool   `json:"primary"`
	Partition    bool   `json:"partition"`
	OnlineType   string `json:"onlineType,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty"`
}
