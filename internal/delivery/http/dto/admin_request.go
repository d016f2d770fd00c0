package dto

// PollRequest triggers a poll of the newest list pages followed by post
// processing. A missing fallbackPages uses the configured default.
type PollRequest struct {
	Pages         int    `json:"pages" validate:"gte=0,lte=50"`
	FallbackPages *int   `json:"fallbackPages" validate:"omitempty,gte=0,lte=50"`
	StartPage     int    `json:"startPage" validate:"gte=0"`
	Guild         string `json:"guild" validate:"omitempty,max=64"`
}

type ScanRequest struct {
	StartID int    `json:"startId" validate:"gte=1"`
	Count   int    `json:"count" validate:"gte=1,lte=10000"`
	Guild   string `json:"guild" validate:"omitempty,max=64"`
	Debug   bool   `json:"debug"`
}

type StatsDailyRequest struct {
	Guild string `json:"guild" validate:"omitempty,max=64"`
}
