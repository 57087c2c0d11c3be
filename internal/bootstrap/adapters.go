package bootstrap

import (
	"context"
	"time"

	"github.com/example/roombooking/internal/application"
	"github.com/example/roombooking/internal/persistence"
)

type roleRepositoryAdapter struct {
	repo persistence.RoleRepository
}

func newRoleRepositoryAdapter(repo persistence.RoleRepository) *roleRepositoryAdapter {
	return &roleRepositoryAdapter{repo: repo}
}

func (a *roleRepositoryAdapter) CreateRole(ctx context.Context, name string) error {
	return a.repo.CreateRole(ctx, persistence.Role{Name: name})
}

func (a *roleRepositoryAdapter) ListRoles(ctx context.Context) ([]string, error) {
	models, err := a.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(models))
	for _, model := range models {
		names = append(names, model.Name)
	}
	return names, nil
}

func (a *roleRepositoryAdapter) MissingRoles(ctx context.Context, names []string) ([]string, error) {
	return a.repo.MissingRoles(ctx, names)
}

type roomRepositoryAdapter struct {
	repo persistence.RoomRepository
}

func newRoomRepositoryAdapter(repo persistence.RoomRepository) *roomRepositoryAdapter {
	return &roomRepositoryAdapter{repo: repo}
}

func (a *roomRepositoryAdapter) CreateRoom(ctx context.Context, room application.Room) error {
	return a.repo.CreateRoom(ctx, toPersistenceRoom(room))
}

func (a *roomRepositoryAdapter) GetRoom(ctx context.Context, number string) (application.Room, error) {
	stored, err := a.repo.GetRoom(ctx, number)
	if err != nil {
		return application.Room{}, err
	}
	return toApplicationRoom(stored), nil
}

func (a *roomRepositoryAdapter) ListRooms(ctx context.Context, minCapacity int) ([]application.Room, error) {
	models, err := a.repo.ListRooms(ctx, minCapacity)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	rooms := make([]application.Room, 0, len(models))
	for _, model := range models {
		rooms = append(rooms, toApplicationRoom(model))
	}
	return rooms, nil
}

func (a *roomRepositoryAdapter) DeleteRoom(ctx context.Context, number string) error {
	return a.repo.DeleteRoom(ctx, number)
}

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	stored, err := a.repo.CreateUser(ctx, toPersistenceUser(creds))
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, id int64) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUserByUsername(ctx context.Context, username string) (application.User, error) {
	stored, err := a.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

// GetUserCredentialsByUsername serves the auth service.
func (a *userRepositoryAdapter) GetUserCredentialsByUsername(ctx context.Context, username string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{
		User:         toApplicationUser(stored),
		PasswordHash: stored.PasswordHash,
	}, nil
}

func (a *userRepositoryAdapter) ListUsers(ctx context.Context) ([]application.User, error) {
	models, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

func (a *userRepositoryAdapter) SetUserRoles(ctx context.Context, id int64, roles []string) error {
	return a.repo.SetUserRoles(ctx, id, roles)
}

func (a *userRepositoryAdapter) CountUsers(ctx context.Context) (int, error) {
	return a.repo.CountUsers(ctx)
}

type bookingRepositoryAdapter struct {
	repo persistence.BookingRepository
}

func newBookingRepositoryAdapter(repo persistence.BookingRepository) *bookingRepositoryAdapter {
	return &bookingRepositoryAdapter{repo: repo}
}

func (a *bookingRepositoryAdapter) ListAcceptedOverlapping(ctx context.Context, window application.BookingWindow) ([]application.Booking, error) {
	return listAcceptedOverlapping(ctx, a.repo, window)
}

func (a *bookingRepositoryAdapter) GetBooking(ctx context.Context, id int64) (application.Booking, error) {
	stored, err := a.repo.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingRepositoryAdapter) ListBookingsForUser(ctx context.Context, userID int64) ([]application.Booking, error) {
	models, err := a.repo.ListBookingsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toApplicationBookings(models), nil
}

func (a *bookingRepositoryAdapter) ListPendingBookings(ctx context.Context) ([]application.Booking, error) {
	models, err := a.repo.ListPendingBookings(ctx)
	if err != nil {
		return nil, err
	}
	return toApplicationBookings(models), nil
}

func (a *bookingRepositoryAdapter) DeleteBooking(ctx context.Context, id int64) error {
	return a.repo.DeleteBooking(ctx, id)
}

func (a *bookingRepositoryAdapter) DeleteUserBooking(ctx context.Context, userID, id int64) error {
	return a.repo.DeleteUserBooking(ctx, userID, id)
}

func (a *bookingRepositoryAdapter) WithinBookingTx(ctx context.Context, fn func(tx application.BookingTx) error) error {
	return a.repo.WithinBookingTx(ctx, func(tx persistence.BookingTx) error {
		return fn(&bookingTxAdapter{tx: tx})
	})
}

type bookingTxAdapter struct {
	tx persistence.BookingTx
}

func (a *bookingTxAdapter) ListAcceptedOverlapping(ctx context.Context, window application.BookingWindow) ([]application.Booking, error) {
	return listAcceptedOverlapping(ctx, a.tx, window)
}

func (a *bookingTxAdapter) GetRoom(ctx context.Context, number string) (application.Room, error) {
	stored, err := a.tx.GetRoom(ctx, number)
	if err != nil {
		return application.Room{}, err
	}
	return toApplicationRoom(stored), nil
}

func (a *bookingTxAdapter) GetBooking(ctx context.Context, id int64) (application.Booking, error) {
	stored, err := a.tx.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingTxAdapter) InsertBooking(ctx context.Context, booking application.Booking) (application.Booking, error) {
	stored, err := a.tx.InsertBooking(ctx, toPersistenceBooking(booking))
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingTxAdapter) UpdateBookingTimes(ctx context.Context, id int64, start, end time.Time) error {
	return a.tx.UpdateBookingTimes(ctx, id, start, end)
}

func (a *bookingTxAdapter) AcceptBooking(ctx context.Context, id int64, decidedAt time.Time) error {
	return a.tx.AcceptBooking(ctx, id, decidedAt)
}

func listAcceptedOverlapping(ctx context.Context, reader persistence.BookingReader, window application.BookingWindow) ([]application.Booking, error) {
	models, err := reader.ListAcceptedOverlapping(ctx, persistence.BookingQuery{
		RoomNumber: window.RoomNumber,
		Start:      window.Range.Start,
		End:        window.Range.End,
		ExcludeID:  window.ExcludeID,
	})
	if err != nil {
		return nil, err
	}
	return toApplicationBookings(models), nil
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, tokenHash string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, tokenHash)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) RevokeSession(ctx context.Context, tokenHash string, revokedAt time.Time) (application.Session, error) {
	stored, err := a.repo.RevokeSession(ctx, tokenHash, revokedAt)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	return a.repo.DeleteExpiredSessions(ctx, reference)
}

func toApplicationRoom(model persistence.Room) application.Room {
	return application.Room{
		Number:       model.Number,
		Capacity:     model.Capacity,
		Description:  model.Description,
		RequestOnly:  model.RequestOnly,
		AllowedRoles: cloneStrings(model.AllowedRoles),
		CreatedAt:    model.CreatedAt,
	}
}

func toPersistenceRoom(room application.Room) persistence.Room {
	return persistence.Room{
		Number:       room.Number,
		Capacity:     room.Capacity,
		Description:  room.Description,
		RequestOnly:  room.RequestOnly,
		AllowedRoles: cloneStrings(room.AllowedRoles),
		CreatedAt:    room.CreatedAt,
	}
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:        model.ID,
		Username:  model.Username,
		Name:      model.Name,
		Roles:     cloneStrings(model.Roles),
		CreatedAt: model.CreatedAt,
	}
}

func toPersistenceUser(creds application.UserCredentials) persistence.User {
	return persistence.User{
		ID:           creds.User.ID,
		Username:     creds.User.Username,
		Name:         creds.User.Name,
		PasswordHash: creds.PasswordHash,
		Roles:        cloneStrings(creds.User.Roles),
		CreatedAt:    creds.User.CreatedAt,
	}
}

func toApplicationBooking(model persistence.Booking) application.Booking {
	return application.Booking{
		ID:         model.ID,
		UserID:     model.UserID,
		Username:   model.Username,
		RoomNumber: model.RoomNumber,
		Start:      model.Start,
		End:        model.End,
		Accepted:   model.Accepted,
		CreatedAt:  model.CreatedAt,
		DecidedAt:  cloneTime(model.DecidedAt),
	}
}

func toApplicationBookings(models []persistence.Booking) []application.Booking {
	if len(models) == 0 {
		return nil
	}
	bookings := make([]application.Booking, 0, len(models))
	for _, model := range models {
		bookings = append(bookings, toApplicationBooking(model))
	}
	return bookings
}

func toPersistenceBooking(booking application.Booking) persistence.Booking {
	return persistence.Booking{
		ID:         booking.ID,
		UserID:     booking.UserID,
		RoomNumber: booking.RoomNumber,
		Start:      booking.Start,
		End:        booking.End,
		Accepted:   booking.Accepted,
		CreatedAt:  booking.CreatedAt,
		DecidedAt:  cloneTime(booking.DecidedAt),
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:          model.ID,
		UserID:      model.UserID,
		TokenHash:   model.TokenHash,
		Fingerprint: model.Fingerprint,
		ExpiresAt:   model.ExpiresAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
		RevokedAt:   cloneTime(model.RevokedAt),
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:          session.ID,
		UserID:      session.UserID,
		TokenHash:   session.TokenHash,
		Fingerprint: session.Fingerprint,
		ExpiresAt:   session.ExpiresAt,
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   session.UpdatedAt,
		RevokedAt:   cloneTime(session.RevokedAt),
	}
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
