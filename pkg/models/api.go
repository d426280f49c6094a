package models

// SettingsRequest updates runtime capture settings. Omitted fields are left unchanged.
type SettingsRequest struct {
	Quality   *int     `json:"quality" binding:"omitempty,min=1,max=100"`
	FrameRate *float64 `json:"frameRate" binding:"omitempty,gte=0"` // 0 means unbounded
	Debug     *bool    `json:"debug"`
}

// SettingsResponse reports the runtime capture settings
type SettingsResponse struct {
	Quality       int     `json:"quality"`
	FrameRate     float64 `json:"frameRate"`     // 0 means unbounded
	FramePeriodMs int64   `json:"framePeriodMs"` // 0 means every frame is processed
	Debug         bool    `json:"debug"`
}

// StatusResponse describes the capture pipeline
type StatusResponse struct {
	State       string           `json:"state"`
	Rotation    int              `json:"rotation"`
	BaseSize    Size             `json:"baseSize"`
	TargetSize  Size             `json:"targetSize"`
	Settings    SettingsResponse `json:"settings"`
	LastFrame   *FrameInfo       `json:"lastFrame,omitempty"`
	Session     *SessionInfo     `json:"session,omitempty"`
	Connections int              `json:"connections"`
}

// FrameInfo describes the cached frame without its payload
type FrameInfo struct {
	Seq        uint64 `json:"seq"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bytes      int    `json:"bytes"`
	CapturedAt string `json:"capturedAt"`
}

// SessionInfo represents client session metadata returned by the API
type SessionInfo struct {
	ID         string `json:"id"`
	RemoteAddr string `json:"remoteAddr"`
	State      string `json:"state"`
	AcceptedAt string `json:"acceptedAt"`
	ClosedAt   string `json:"closedAt,omitempty"`
	Duration   int    `json:"duration"` // seconds
	Pokes      uint64 `json:"pokes"`
	FramesSent uint64 `json:"framesSent"`
	BytesSent  uint64 `json:"bytesSent"`
	CloseCause string `json:"closeCause,omitempty"`
}

// SessionListResponse represents recent sessions
type SessionListResponse struct {
	Sessions []SessionInfo `json:"sessions"`
	Total    int           `json:"total"`
}

// TokenRequest represents a request to issue an API token
type TokenRequest struct {
	Label     string `json:"label" binding:"required"`
	ExpiresIn int    `json:"expiresIn" binding:"gte=0"` // Seconds until expiration (default 3600)
}

// TokenResponse represents an issued API token
type TokenResponse struct {
	Token     string `json:"token"`
	Label     string `json:"label"`
	ExpiresAt string `json:"expiresAt"`
}
