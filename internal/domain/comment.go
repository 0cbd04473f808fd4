package domain

import "time"

// Comment is an immutable status-history entry. The most recent comment
// determines the ticket's current status.
type Comment struct {
	ID            int64
	TicketID      int64
	UserID        *int64
	Body          string
	Status        TicketStatus
	ClosingReason *ClosingReason
	CreatedAt     time.Time
}

// CurrentStatus folds a comment history into the ticket status. The latest
// CreatedAt wins, equal timestamps fall back to the higher ID. An empty
// history means NEW.
func CurrentStatus(comments []Comment) TicketStatus {
	latest := LatestComment(comments)
	if latest == nil {
		return TicketStatusNew
	}
	return latest.Status
}

// LatestComment returns the most recent comment or nil.
func LatestComment(comments []Comment) *Comment {
	var latest *Comment
	for i := range comments {
		c := &comments[i]
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) ||
			(c.CreatedAt.Equal(latest.CreatedAt) && c.ID > latest.ID) {
			latest = c
		}
	}
	return latest
}
