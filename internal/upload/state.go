package upload

import (
	"fmt"

	"github.com/abdul-hamid-achik/trackdrop/internal/db"
)

var transitions = map[db.UploadStatus][]db.UploadStatus{
	db.UploadStatusPending:    {db.UploadStatusProcessing, db.UploadStatusCompleted, db.UploadStatusFailed, db.UploadStatusCancelled},
	db.UploadStatusProcessing: {db.UploadStatusCompleted, db.UploadStatusFailed, db.UploadStatusCancelled},
	db.UploadStatusFailed:     {db.UploadStatusPending, db.UploadStatusCancelled},
}

// CanTransition reports whether an upload may move from one status to
// another. Statuses only move forward, except failed back to pending when
// the client resubmits.
func CanTransition(from, to db.UploadStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition leaves s.
func IsTerminal(s db.UploadStatus) bool {
	return s == db.UploadStatusCompleted || s == db.UploadStatusCancelled
}

// IsActive reports whether a worker may still act on an upload in status s.
func IsActive(s db.UploadStatus) bool {
	return s == db.UploadStatusPending || s == db.UploadStatusProcessing
}

func checkTransition(from, to db.UploadStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
