package store

import "qms/smartqueue-service/internal/models"

var transitionMap = map[models.Status][]models.Status{
	models.StatusWaiting: {models.StatusArrived, models.StatusServing, models.StatusCancelled, models.StatusNoShow},
	models.StatusArrived: {models.StatusServing, models.StatusCancelled},
	models.StatusServing: {models.StatusCompleted, models.StatusCancelled},
}

// ValidTransition reports whether an entry in status from may move to to.
func ValidTransition(from, to models.Status) bool {
	for _, status := range transitionMap[from] {
		if status == to {
			return true
		}
	}
	return false
}

// ValidRequestedTransition is ValidTransition for caller-initiated updates;
// no-show is only ever applied by the sweeper.
func ValidRequestedTransition(from, to models.Status) bool {
	if to == models.StatusNoShow {
		return false
	}
	return ValidTransition(from, to)
}
