package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/roombooking/internal/persistence"
)

// memoryStore is an in-memory stand-in for the repositories. Booking
// transactions hold the store lock for their whole duration.
type memoryStore struct {
	mu       sync.Mutex
	roles    map[string]struct{}
	rooms    map[string]Room
	bookings map[int64]Booking
	users    map[int64]UserCredentials
	sessions map[string]Session
	nextID   int64

	listErr   error
	insertErr error
	txCalls   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		roles:    map[string]struct{}{},
		rooms:    map[string]Room{},
		bookings: map[int64]Booking{},
		users:    map[int64]UserCredentials{},
		sessions: map[string]Session{},
	}
}

func (m *memoryStore) addRoom(room Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.Number] = room
}

func (m *memoryStore) addBooking(b Booking) Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b.ID = m.nextID
	m.bookings[b.ID] = b
	return b
}

func (m *memoryStore) booking(id int64) (Booking, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	return b, ok
}

// RoleRepository

func (m *memoryStore) CreateRole(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[name]; ok {
		return persistence.ErrDuplicate
	}
	m.roles[name] = struct{}{}
	return nil
}

func (m *memoryStore) ListRoles(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.roles))
	for name := range m.roles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryStore) MissingRoles(ctx context.Context, names []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []string
	for _, name := range names {
		if _, ok := m.roles[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// RoomRepository

func (m *memoryStore) CreateRoom(ctx context.Context, room Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.Number]; ok {
		return persistence.ErrDuplicate
	}
	m.rooms[room.Number] = room
	return nil
}

func (m *memoryStore) GetRoom(ctx context.Context, number string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getRoom(number)
}

func (m *memoryStore) getRoom(number string) (Room, error) {
	room, ok := m.rooms[number]
	if !ok {
		return Room{}, persistence.ErrNotFound
	}
	return room, nil
}

func (m *memoryStore) ListRooms(ctx context.Context, minCapacity int) ([]Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Room
	for _, room := range m.rooms {
		if room.Capacity >= minCapacity {
			out = append(out, room)
		}
	}
	return out, nil
}

func (m *memoryStore) DeleteRoom(ctx context.Context, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[number]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.rooms, number)
	for id, b := range m.bookings {
		if b.RoomNumber == number {
			delete(m.bookings, id)
		}
	}
	return nil
}

// BookingRepository

func (m *memoryStore) ListAcceptedOverlapping(ctx context.Context, window BookingWindow) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listAcceptedOverlapping(window)
}

func (m *memoryStore) listAcceptedOverlapping(window BookingWindow) ([]Booking, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Booking
	for _, b := range m.bookings {
		if !b.Accepted || b.ID == window.ExcludeID {
			continue
		}
		if window.RoomNumber != "" && b.RoomNumber != window.RoomNumber {
			continue
		}
		if b.Start.Before(window.Range.End) && b.End.After(window.Range.Start) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (m *memoryStore) GetBooking(ctx context.Context, id int64) (Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getBooking(id)
}

func (m *memoryStore) getBooking(id int64) (Booking, error) {
	b, ok := m.bookings[id]
	if !ok {
		return Booking{}, persistence.ErrNotFound
	}
	if user, ok := m.users[b.UserID]; ok {
		b.Username = user.User.Username
	}
	return b, nil
}

func (m *memoryStore) ListBookingsForUser(ctx context.Context, userID int64) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (m *memoryStore) ListPendingBookings(ctx context.Context) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for id, b := range m.bookings {
		if !b.Accepted {
			b, _ = m.getBooking(id)
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (m *memoryStore) DeleteBooking(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.bookings, id)
	return nil
}

func (m *memoryStore) DeleteUserBooking(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.UserID != userID {
		return persistence.ErrNotFound
	}
	delete(m.bookings, id)
	return nil
}

func (m *memoryStore) WithinBookingTx(ctx context.Context, fn func(tx BookingTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls++

	snapshot := make(map[int64]Booking, len(m.bookings))
	for id, b := range m.bookings {
		snapshot[id] = b
	}
	nextID := m.nextID
	if err := fn(&memoryTx{store: m}); err != nil {
		m.bookings = snapshot
		m.nextID = nextID
		return err
	}
	return nil
}

type memoryTx struct {
	store *memoryStore
}

func (t *memoryTx) ListAcceptedOverlapping(ctx context.Context, window BookingWindow) ([]Booking, error) {
	return t.store.listAcceptedOverlapping(window)
}

func (t *memoryTx) GetRoom(ctx context.Context, number string) (Room, error) {
	return t.store.getRoom(number)
}

func (t *memoryTx) GetBooking(ctx context.Context, id int64) (Booking, error) {
	return t.store.getBooking(id)
}

func (t *memoryTx) InsertBooking(ctx context.Context, b Booking) (Booking, error) {
	if t.store.insertErr != nil {
		return Booking{}, t.store.insertErr
	}
	t.store.nextID++
	b.ID = t.store.nextID
	t.store.bookings[b.ID] = b
	return t.store.getBooking(b.ID)
}

func (t *memoryTx) UpdateBookingTimes(ctx context.Context, id int64, start, end time.Time) error {
	b, ok := t.store.bookings[id]
	if !ok {
		return persistence.ErrNotFound
	}
	b.Start, b.End = start, end
	t.store.bookings[id] = b
	return nil
}

func (t *memoryTx) AcceptBooking(ctx context.Context, id int64, decidedAt time.Time) error {
	b, ok := t.store.bookings[id]
	if !ok {
		return persistence.ErrNotFound
	}
	b.Accepted = true
	b.DecidedAt = &decidedAt
	t.store.bookings[id] = b
	return nil
}

// UserRepository and CredentialStore

func (m *memoryStore) CreateUser(ctx context.Context, creds UserCredentials) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.User.Username == creds.User.Username {
			return User{}, persistence.ErrDuplicate
		}
	}
	m.nextID++
	creds.User.ID = m.nextID
	m.users[creds.User.ID] = creds
	return creds.User, nil
}

func (m *memoryStore) GetUser(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	creds, ok := m.users[id]
	if !ok {
		return User{}, persistence.ErrNotFound
	}
	return creds.User, nil
}

func (m *memoryStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	creds, err := m.GetUserCredentialsByUsername(ctx, username)
	return creds.User, err
}

func (m *memoryStore) GetUserCredentialsByUsername(ctx context.Context, username string) (UserCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, creds := range m.users {
		if creds.User.Username == username {
			return creds, nil
		}
	}
	return UserCredentials{}, persistence.ErrNotFound
}

func (m *memoryStore) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, creds := range m.users {
		out = append(out, creds.User)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) SetUserRoles(ctx context.Context, id int64, roles []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	creds, ok := m.users[id]
	if !ok {
		return persistence.ErrNotFound
	}
	creds.User.Roles = roles
	m.users[id] = creds
	return nil
}

func (m *memoryStore) CountUsers(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

// SessionRepository

func (m *memoryStore) CreateSession(ctx context.Context, session Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.TokenHash]; ok {
		return Session{}, persistence.ErrDuplicate
	}
	m.sessions[session.TokenHash] = session
	return session, nil
}

func (m *memoryStore) GetSession(ctx context.Context, tokenHash string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[tokenHash]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	return session, nil
}

func (m *memoryStore) RevokeSession(ctx context.Context, tokenHash string, revokedAt time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[tokenHash]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	session.RevokedAt = &revokedAt
	m.sessions[tokenHash] = session
	return session, nil
}

func (m *memoryStore) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, session := range m.sessions {
		if !session.ExpiresAt.After(reference) {
			delete(m.sessions, hash)
		}
	}
	return nil
}

func sortBookings(bookings []Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].Start.Equal(bookings[j].Start) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].Start.Before(bookings[j].Start)
	})
}

// cheapHash keeps password hashing fast in tests.
func cheapHash(password string) (string, error) {
	return CreatePasswordHash(password, Argon2idParams{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  8,
		KeyLength:   16,
	})
}
