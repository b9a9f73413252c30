package queue

import (
	"context"
	"strconv"
)

// Traffic light bands, in estimated minutes of wait.
const (
	trafficYellowAbove = 5
	trafficRedAbove    = 15
)

type TrafficLight struct {
	CategoryID  string `json:"category_id"`
	WaitMinutes int    `json:"wait_minutes"`
	Color       string `json:"color"`
	Label       string `json:"label"`
}

// TrafficColor bands a wait estimate: up to 5 minutes is green, up to 15
// yellow, anything longer red.
func TrafficColor(minutes int) string {
	switch {
	case minutes > trafficRedAbove:
		return "red"
	case minutes > trafficYellowAbove:
		return "yellow"
	default:
		return "green"
	}
}

// TrafficLights estimates the wait of every category served at a location
// for the lobby display.
func (s *Service) TrafficLights(ctx context.Context, locationID string) []TrafficLight {
	categories := s.counters.Categories(locationID)
	lights := make([]TrafficLight, 0, len(categories))
	for _, category := range categories {
		wait := s.estimator.EstimateWait(ctx, locationID, category)
		lights = append(lights, TrafficLight{
			CategoryID:  category,
			WaitMinutes: wait,
			Color:       TrafficColor(wait),
			Label:       strconv.Itoa(wait) + " min",
		})
	}
	return lights
}
