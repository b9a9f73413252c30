package queue

import (
	"fmt"
	"sync"

	"qms/smartqueue-service/internal/models"
)

const DefaultSeatCapacity = 20

const seatsPerRow = 5

type SeatAvailability struct {
	Total            int           `json:"total"`
	Occupied         int           `json:"occupied"`
	Available        int           `json:"available"`
	OccupancyPercent int           `json:"occupancy_percent"`
	Seats            []models.Seat `json:"seats"`
}

// SeatAllocator holds one fixed-capacity waiting-area pool per location.
// Pools are created on first use and live as long as the allocator.
type SeatAllocator struct {
	capacity int

	mu    sync.Mutex
	pools map[string][]models.Seat
}

func NewSeatAllocator(capacity int) *SeatAllocator {
	if capacity <= 0 {
		capacity = DefaultSeatCapacity
	}
	return &SeatAllocator{capacity: capacity, pools: make(map[string][]models.Seat)}
}

// Assign takes the first free seat. ok is false when the pool is full.
func (a *SeatAllocator) Assign(locationID, entryID string) (models.Seat, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pool := a.pool(locationID)
	for i := range pool {
		if !pool[i].Occupied {
			pool[i].Occupied = true
			pool[i].EntryID = entryID
			return pool[i], true
		}
	}
	return models.Seat{}, false
}

// Release frees the seat held by entryID and reports whether there was one.
func (a *SeatAllocator) Release(locationID, entryID string) bool {
	if entryID == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	pool := a.pool(locationID)
	for i := range pool {
		if pool[i].EntryID == entryID {
			pool[i].Occupied = false
			pool[i].EntryID = ""
			return true
		}
	}
	return false
}

func (a *SeatAllocator) Availability(locationID string) SeatAvailability {
	a.mu.Lock()
	defer a.mu.Unlock()
	pool := a.pool(locationID)
	seats := make([]models.Seat, len(pool))
	copy(seats, pool)

	occupied := 0
	for _, seat := range seats {
		if seat.Occupied {
			occupied++
		}
	}
	return SeatAvailability{
		Total:            len(seats),
		Occupied:         occupied,
		Available:        len(seats) - occupied,
		OccupancyPercent: round(float64(occupied) * 100 / float64(len(seats))),
		Seats:            seats,
	}
}

// pool must be called with mu held.
func (a *SeatAllocator) pool(locationID string) []models.Seat {
	if pool, ok := a.pools[locationID]; ok {
		return pool
	}
	pool := make([]models.Seat, a.capacity)
	for i := range pool {
		pool[i] = models.Seat{SeatID: fmt.Sprintf("S%d", i+1), Row: i / seatsPerRow, Col: i % seatsPerRow}
	}
	a.pools[locationID] = pool
	return pool
}
