package queue

import "github.com/AbduElrahman2001/BALHA/internal/models"

var transitionMap = map[string][]string{
	"complete": {models.StatusWaiting},
	"cancel":   {models.StatusWaiting},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
