package models

// StartBotRequest creates and starts one worker.
type StartBotRequest struct {
	Config BotConfig `json:"config" validate:"required"`
}

// EmergencyStopRequest triggers the global kill switch. Empty BotIDs means
// every running worker.
type EmergencyStopRequest struct {
	Reason string   `json:"reason" validate:"required,min=3"`
	BotIDs []string `json:"bot_ids,omitempty"`
}

// ResumeRequest lifts suspension after an emergency is resolved. Empty
// BotIDs means every suspended worker.
type ResumeRequest struct {
	BotIDs []string `json:"bot_ids,omitempty"`
}

// BotLogsQuery bounds the number of returned log lines.
type BotLogsQuery struct {
	Limit int `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}
