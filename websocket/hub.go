package websocket

import (
	"log"
	"sync"
	"time"

	"osmsync/types"
)

// Hub interface defines the methods for managing WebSocket connections
type Hub interface {
	Run()
	BroadcastProgress(jobID, msgType, status, message string, progress int)
	RegisterClient(client *Client)
	UnregisterClient(client *Client)
}

// hub maintains the set of active clients and broadcasts progress
// messages to them, keyed by job id with an "all" firehose.
type hub struct {
	clients    map[string]map[*Client]bool
	broadcast  chan types.ProgressMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() Hub {
	return &hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan types.ProgressMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main event loop
func (h *hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.jobID] == nil {
				h.clients[client.jobID] = make(map[*Client]bool)
			}
			h.clients[client.jobID][client] = true
			h.mu.Unlock()
			log.Printf("WebSocket client connected for job %s", client.jobID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.jobID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.jobID)
					}
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			h.deliver(h.clients[message.JobID], message)
			h.deliver(h.clients["all"], message)
			h.mu.Unlock()
		}
	}
}

// deliver sends to every client in the set, dropping clients whose send
// buffer is full. Callers hold the write lock.
func (h *hub) deliver(clients map[*Client]bool, message types.ProgressMessage) {
	for client := range clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(clients, client)
		}
	}
}

// BroadcastProgress sends a progress message to all clients watching a job.
// Non-blocking: when the broadcast channel is full the message is dropped,
// since the next update supersedes it anyway.
func (h *hub) BroadcastProgress(jobID, msgType, status, message string, progress int) {
	progressMsg := types.ProgressMessage{
		JobID:     jobID,
		Type:      msgType,
		Status:    status,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- progressMsg:
	default:
		log.Printf("WebSocket broadcast channel full, dropping message for job %s", jobID)
	}
}

// RegisterClient registers a new client with the hub
func (h *hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient unregisters a client from the hub
func (h *hub) UnregisterClient(client *Client) {
	h.unregister <- client
}
