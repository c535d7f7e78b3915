package iotd

import "hash/fnv"

// Action is a per-actor annotation on a queue entry.
type Action string

const (
	ActionHide    Action = "HIDE"
	ActionDismiss Action = "DISMISS"
)

// RequiresConfirmation reports whether the action needs an explicit
// confirmation step. Dismissals cannot be undone; hiding can.
func RequiresConfirmation(action Action) bool {
	return action == ActionDismiss
}

// Reversible reports whether the actor may undo the action.
func Reversible(action Action) bool {
	return action == ActionHide
}

// DismissedForAll reports whether an image left every queue because enough
// distinct actors dismissed it. maxDismissals <= 0 disables the ceiling.
func DismissedForAll(dismissals, maxDismissals int) bool {
	return maxDismissals > 0 && dismissals >= maxDismissals
}

// IsDesignatedSubmitter decides whether actorID is among the submitters an
// image is routed to. The pair hashes into one of 100 buckets, so a given
// percentage routes each image to that share of submitters, stably.
func IsDesignatedSubmitter(imageID, actorID string, percentage int) bool {
	if percentage >= 100 {
		return true
	}
	if percentage <= 0 {
		return false
	}
	return bucket(imageID, actorID) < uint32(percentage)
}

// bucket folds the fnv-64a hash of the pair so its high bits reach the modulus.
func bucket(imageID, actorID string) uint32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(imageID + ":" + actorID))
	sum := h.Sum64()
	return uint32((sum ^ sum>>32) % 100)
}
