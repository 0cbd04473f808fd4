package domain

import "time"

// SLASnapshot summarizes acceptance and resolution times derived from ticket
// histories.
type SLASnapshot struct {
	GeneratedAt              time.Time             `json:"generated_at"`
	TotalTickets             int                   `json:"total_tickets"`
	ByStatus                 map[TicketStatus]int  `json:"by_status"`
	ByClosingReason          map[ClosingReason]int `json:"by_closing_reason"`
	AcceptedTickets          int                   `json:"accepted_tickets"`
	MeanAcceptanceSeconds    float64               `json:"mean_acceptance_seconds"`
	MaxAcceptanceSeconds     float64               `json:"max_acceptance_seconds"`
	ResolvedTickets          int                   `json:"resolved_tickets"`
	MeanResolutionSeconds    float64               `json:"mean_resolution_seconds"`
	MaxResolutionSeconds     float64               `json:"max_resolution_seconds"`
	AwaitingAcceptanceBreach []int64               `json:"awaiting_acceptance_breach"`
}
