package domain

// QueueStats reports the depth of one tier queue.
type QueueStats struct {
	Queue     string    `json:"queue"`
	EventType EventType `json:"eventType"`
	Tier      Priority  `json:"tier"`
	Depth     int64     `json:"depth"`
}

// DeadLetterStats reports how many events were given up on.
type DeadLetterStats struct {
	Depth int64 `json:"depth"`
}
