package bus

import (
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/bigspace/internal/core/models"
)

// Event types published by the world.
const (
	TypeSpatialSpawned   = "spatial.spawned"
	TypeSpatialDespawned = "spatial.despawned"
	TypeOriginDesignated = "origin.designated"
	TypeDiagnostic       = "diagnostic"
	TypeFrameCompleted   = "frame.completed"
)

// PartitionTopic is the topic a partition's events are published on.
func PartitionTopic(id models.PartitionID) string {
	return id.String()
}

// NewEvent stamps a fresh event with a unique id and the current time.
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewPartitionEvent is NewEvent scoped to an entity of a partition.
func NewPartitionEvent(eventType, source string, p models.PartitionID, e models.EntityID, data any) Event {
	ev := NewEvent(eventType, source, data)
	ev.Partition = p
	ev.Entity = e
	return ev
}

// WithFrame returns a copy of ev attributed to frame n.
func (ev Event) WithFrame(n uint64) Event {
	ev.Frame = n
	return ev
}
