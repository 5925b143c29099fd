package server

import (
	"cmp"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/observability/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// allPartitions is the room of clients that did not pick a partition.
const allPartitions = -1

// Room is the set of clients watching one partition.
type Room struct {
	partition int
	clients   map[*websocket.Conn]struct{}
	mu        sync.Mutex
}

// Hub fans telemetry snapshots out to websocket clients. A client joins
// the room of the partition named by its ?partition= query parameter, or
// the room receiving every partition when the parameter is absent.
type Hub struct {
	rooms        map[int]*Room
	mu           sync.Mutex
	partitions   int
	writeTimeout time.Duration
	logger       log.Log
}

func NewHub(partitions int, writeTimeout time.Duration, logger log.Log) *Hub {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Hub{
		rooms:        make(map[int]*Room),
		partitions:   partitions,
		writeTimeout: writeTimeout,
		logger:       logger.With(log.String("component", "websocket")),
	}
}

func (h *Hub) getOrCreateRoom(partition int) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[partition]; exists {
		return room
	}
	room := &Room{
		partition: partition,
		clients:   make(map[*websocket.Conn]struct{}),
	}
	h.rooms[partition] = room
	return room
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	partition := allPartitions
	if raw := r.URL.Query().Get("partition"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 0 || p >= h.partitions {
			http.Error(w, ErrUnknownPartition.Error(), http.StatusBadRequest)
			return
		}
		partition = p
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}

	room := h.getOrCreateRoom(partition)
	room.mu.Lock()
	room.clients[conn] = struct{}{}
	room.mu.Unlock()
	h.logger.Debug("client connected",
		log.String("remote_addr", conn.RemoteAddr().String()),
		log.Int("partition", partition))

	// Clients only listen; reading detects the close.
	go func() {
		defer h.remove(room, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(room *Room, conn *websocket.Conn) {
	room.mu.Lock()
	_, ok := room.clients[conn]
	delete(room.clients, conn)
	room.mu.Unlock()
	if ok {
		_ = conn.Close()
		h.logger.Debug("client disconnected", log.String("remote_addr", conn.RemoteAddr().String()))
	}
}

// Broadcast sends snap to every connected client, each room receiving only
// its partition. Rooms are served in partition order and a room whose payload
// fails to encode is skipped. Clients that fail to keep up are dropped.
func (h *Hub) Broadcast(snap Snapshot) {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.Unlock()
	slices.SortFunc(rooms, func(a, b *Room) int { return cmp.Compare(a.partition, b.partition) })

	for _, room := range rooms {
		payload := snap
		if room.partition != allPartitions {
			payload = snap.Only(models.PartitionID(room.partition))
		}
		data, err := payload.Serialize()
		if err != nil {
			h.logger.Error("encode snapshot", log.Frame(snap.Frame), log.Int("room", room.partition), log.Error(err))
			continue
		}

		var failed []*websocket.Conn
		room.mu.Lock()
		for conn := range room.clients {
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err = conn.WriteMessage(websocket.TextMessage, data); err != nil {
				failed = append(failed, conn)
			}
		}
		room.mu.Unlock()
		for _, conn := range failed {
			h.remove(room, conn)
		}
	}
}

// Clients reports the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, room := range h.rooms {
		room.mu.Lock()
		n += len(room.clients)
		room.mu.Unlock()
	}
	return n
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[int]*Room)
	h.mu.Unlock()
	for _, room := range rooms {
		room.mu.Lock()
		for conn := range room.clients {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}
		room.clients = make(map[*websocket.Conn]struct{})
		room.mu.Unlock()
	}
}
