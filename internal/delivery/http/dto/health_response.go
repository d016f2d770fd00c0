package dto

type HealthResponseData struct {
	App      string `json:"app"`
	Database string `json:"database"`
}
