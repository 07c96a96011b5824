package signaling

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait   = 10 * time.Second
	sendBuffer  = 64
	maxEnvelope = 1 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type member struct {
	id   string
	room string
	conn *websocket.Conn
	send chan Envelope
}

// Server is an http.Handler that groups peers into rooms and forwards
// signal envelopes between them.
type Server struct {
	log *logrus.Logger

	mu    sync.Mutex
	rooms map[string]map[string]*member
}

func NewServer(log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		log:   log,
		rooms: make(map[string]map[string]*member),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("Failed to upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(maxEnvelope)

	var join Envelope
	if err := conn.ReadJSON(&join); err != nil || join.Type != TypeJoin {
		s.log.Warnf("Expected join from %s: %v", r.RemoteAddr, err)
		_ = conn.Close()
		return
	}

	m := &member{
		id:   join.From,
		room: NormalizeRoom(join.Room),
		conn: conn,
		send: make(chan Envelope, sendBuffer),
	}

	peers, err := s.join(m)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(Envelope{Type: TypeError, Error: err.Error()})
		_ = conn.Close()
		return
	}

	s.log.Infof("Peer %s joined room %s (%d present)", m.id, m.room, len(peers))

	go s.writeLoop(m)
	s.broadcast(m, Envelope{Type: TypeJoined, Room: m.room, From: m.id})

	s.readLoop(m)

	s.leave(m)
	s.log.Infof("Peer %s left room %s", m.id, m.room)
	s.broadcast(m, Envelope{Type: TypeLeft, Room: m.room, From: m.id})
}

func (s *Server) join(m *member) ([]string, error) {
	if m.room == "" {
		return nil, ErrRoomRequired
	}
	if m.id == "" {
		return nil, ErrPeerRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[m.room]
	if !ok {
		room = make(map[string]*member)
		s.rooms[m.room] = room
	}
	if _, taken := room[m.id]; taken {
		return nil, ErrPeerTaken
	}

	peers := make([]string, 0, len(room))
	for id := range room {
		peers = append(peers, id)
	}
	sort.Strings(peers)

	m.send <- Envelope{Type: TypeWelcome, Room: m.room, From: m.id, Peers: peers}
	room[m.id] = m
	return peers, nil
}

func (s *Server) leave(m *member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.rooms[m.room]
	if room[m.id] == m {
		delete(room, m.id)
		close(m.send)
	}
	if len(room) == 0 {
		delete(s.rooms, m.room)
	}
}

func (s *Server) readLoop(m *member) {
	for {
		var env Envelope
		if err := m.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debugf("Read from %s failed: %v", m.id, err)
			}
			return
		}

		if env.Type != TypeSignal {
			s.log.Debugf("Ignoring %s from %s", env.Type, m.id)
			continue
		}

		env.From = m.id
		env.Room = m.room
		if !s.deliver(m.room, env.To, env) {
			s.log.Debugf("Dropped signal from %s to unknown peer %s", m.id, env.To)
		}
	}
}

func (s *Server) writeLoop(m *member) {
	defer func() { _ = m.conn.Close() }()

	for env := range m.send {
		_ = m.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := m.conn.WriteJSON(env); err != nil {
			s.log.Debugf("Write to %s failed: %v", m.id, err)
			return
		}
	}
	_ = m.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (s *Server) deliver(room, to string, env Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.rooms[room][to]
	if !ok {
		return false
	}
	select {
	case target.send <- env:
		return true
	default:
		s.log.Warnf("Send buffer full for %s, dropping %s", to, env.Type)
		return false
	}
}

func (s *Server) broadcast(from *member, env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.rooms[from.room] {
		if id == from.id {
			continue
		}
		select {
		case m.send <- env:
		default:
			s.log.Warnf("Send buffer full for %s, dropping %s", id, env.Type)
		}
	}
}

// Rooms returns the number of peers per open room.
func (s *Server) Rooms() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.rooms))
	for code, room := range s.rooms {
		out[code] = len(room)
	}
	return out
}
