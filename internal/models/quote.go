package models

// Quote is the quote of the day shown on the dashboard.
type Quote struct {
	ID     int64  `json:"id"`
	Quote  string `json:"quote"`
	Book   string `json:"book"`
	Author string `json:"author"`
	Date   string `json:"date"`
}
