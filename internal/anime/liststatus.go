package anime

import (
	"context"
	"strconv"

	"github.com/animotaku/animotaku/internal/models"
)

// MyListStatus fetches the user's list status for an anime. Guests always
// get the empty status without a network call.
func (o *Orchestrator) MyListStatus(ctx context.Context, malID int) (models.ListStatus, error) {
	userID := o.session.UserID()
	if userID == "" {
		return "", nil
	}
	return o.backend.ListStatus(ctx, userID, strconv.Itoa(malID))
}

// SetMyListStatus updates the user's list status for an anime.
func (o *Orchestrator) SetMyListStatus(ctx context.Context, malID int, status models.ListStatus) error {
	userID := o.session.UserID()
	if userID == "" {
		return nil
	}
	return o.backend.SetListStatus(ctx, userID, strconv.Itoa(malID), status)
}
