package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/staybook/hotel-reservations/internal/model"
	"github.com/staybook/hotel-reservations/internal/utils"
)

// MemoryStore keeps hotels, room types, reservations and users in process
// memory.  It satisfies the same contracts as the MySQL repositories and
// backs tests and single-node development runs.
//
// Room type locks are buffered channels of size one, acquired in
// ascending id order with a bounded wait.  The data mutex is never held
// while waiting for a room type lock.
type MemoryStore struct {
	mutex        sync.RWMutex
	hotels       map[string]*model.Hotel
	roomTypes    map[string]*model.RoomType
	reservations map[string]*model.Reservation
	users        map[uint64]*model.User
	nextUserID   uint64

	lockMu   sync.Mutex
	locks    map[string]chan struct{}
	lockWait time.Duration
}

// NewMemoryStore returns an empty store.  lockWait bounds how long a
// booking waits for each room type lock.
func NewMemoryStore(lockWait time.Duration) *MemoryStore {
	if lockWait <= 0 {
		lockWait = 3 * time.Second
	}
	return &MemoryStore{
		hotels:       make(map[string]*model.Hotel),
		roomTypes:    make(map[string]*model.RoomType),
		reservations: make(map[string]*model.Reservation),
		users:        make(map[uint64]*model.User),
		locks:        make(map[string]chan struct{}),
		lockWait:     lockWait,
	}
}

// AddHotel stores or replaces a hotel.
func (s *MemoryStore) AddHotel(h model.Hotel) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.hotels[h.ID] = &h
}

// AddRoomType stores or replaces a room type.
func (s *MemoryStore) AddRoomType(rt model.RoomType) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.roomTypes[rt.ID] = &rt
}

// PutReservation stores a reservation as is, bypassing the booking
// protocol.  Used to load fixtures.
func (s *MemoryStore) PutReservation(r model.Reservation) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reservations[r.ID] = cloneReservation(&r)
}

func (s *MemoryStore) GetHotel(_ context.Context, id string) (*model.Hotel, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	h, ok := s.hotels[id]
	if !ok {
		return nil, model.ErrHotelNotFound
	}
	cp := *h
	return &cp, nil
}

func (s *MemoryStore) ListRoomTypes(_ context.Context, hotelID string) ([]model.RoomType, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var out []model.RoomType
	for _, rt := range s.roomTypes {
		if rt.HotelID == hotelID {
			out = append(out, *rt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetRoomTypes(_ context.Context, ids []string) ([]model.RoomType, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var out []model.RoomType
	for _, id := range ids {
		if rt, ok := s.roomTypes[id]; ok {
			out = append(out, *rt)
		}
	}
	return out, nil
}

func (s *MemoryStore) ActiveLines(_ context.Context, roomTypeIDs []string, q model.DateRange) ([]model.BookedLine, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.activeLinesLocked(roomTypeIDs, q), nil
}

func (s *MemoryStore) activeLinesLocked(roomTypeIDs []string, q model.DateRange) []model.BookedLine {
	want := make(map[string]bool, len(roomTypeIDs))
	for _, id := range roomTypeIDs {
		want[id] = true
	}
	var out []model.BookedLine
	for _, r := range s.reservations {
		if !r.Status.IsActive() {
			continue
		}
		if !(r.Checkin.Before(q.Checkout) && q.Checkin.Before(r.Checkout)) {
			continue
		}
		for _, l := range r.Lines {
			if l.RoomTypeID == nil || !want[*l.RoomTypeID] {
				continue
			}
			out = append(out, model.BookedLine{
				ReservationID: r.ID,
				RoomTypeID:    *l.RoomTypeID,
				Rooms:         l.Rooms,
				Checkin:       r.Checkin,
				Checkout:      r.Checkout,
				Status:        r.Status,
			})
		}
	}
	return out
}

func (s *MemoryStore) lockFor(id string) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

// WithRoomTypeLocks acquires every room type lock in ascending id order,
// waiting at most lockWait for each, and runs fn.  Writes made through
// tx become visible atomically when fn succeeds.
func (s *MemoryStore) WithRoomTypeLocks(ctx context.Context, ids []string, fn LockedFunc) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	s.mutex.RLock()
	for _, id := range sorted {
		if _, ok := s.roomTypes[id]; !ok {
			s.mutex.RUnlock()
			return model.ErrRoomTypeNotFound
		}
	}
	s.mutex.RUnlock()

	var held []chan struct{}
	defer func() {
		for _, ch := range held {
			<-ch
		}
	}()
	for _, id := range sorted {
		ch := s.lockFor(id)
		timer := time.NewTimer(s.lockWait)
		select {
		case ch <- struct{}{}:
			timer.Stop()
			held = append(held, ch)
		case <-timer.C:
			return model.ErrConcurrentConflict
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	tx := &memoryTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, r := range tx.pending {
		s.reservations[r.ID] = r
	}
	return nil
}

// memoryTx buffers inserts until the locked unit succeeds.
type memoryTx struct {
	store   *MemoryStore
	pending []*model.Reservation
}

func (t *memoryTx) ActiveLines(ctx context.Context, roomTypeIDs []string, q model.DateRange) ([]model.BookedLine, error) {
	return t.store.ActiveLines(ctx, roomTypeIDs, q)
}

func (t *memoryTx) CreateReservation(_ context.Context, r *model.Reservation) error {
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	r.CreatedAt, r.UpdatedAt = now, now
	for i := range r.Lines {
		if r.Lines[i].ID == "" {
			r.Lines[i].ID = uuid.NewString()
		}
		r.Lines[i].ReservationID = r.ID
		r.Lines[i].CreatedAt = now
	}
	t.pending = append(t.pending, cloneReservation(r))
	return nil
}

func (s *MemoryStore) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, model.ErrReservationNotFound
	}
	return cloneReservation(r), nil
}

func (s *MemoryStore) GetReservationByPaymentIntent(_ context.Context, intentID string) (*model.Reservation, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, r := range s.reservations {
		if r.PaymentIntentID != nil && *r.PaymentIntentID == intentID {
			return cloneReservation(r), nil
		}
	}
	return nil, model.ErrReservationNotFound
}

func (s *MemoryStore) ApplyTransition(_ context.Context, t model.Transition) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	r, ok := s.reservations[t.ReservationID]
	if !ok || !statusIn(r.Status, t.From) {
		return false, nil
	}
	r.Status = t.To
	r.UpdatedAt = time.Now().UTC()
	if t.PaymentIntentID != nil {
		v := *t.PaymentIntentID
		r.PaymentIntentID = &v
	}
	if t.AmountCents != nil {
		v := *t.AmountCents
		r.AmountCents = &v
	}
	return true, nil
}

func (s *MemoryStore) AttachPaymentIntent(_ context.Context, id, intentID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return model.ErrReservationNotFound
	}
	if r.Status == model.StatusPending {
		r.PaymentIntentID = &intentID
		r.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) ExpireEnded(_ context.Context, now time.Time) ([]model.Reservation, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	now = now.UTC()
	var out []model.Reservation
	for _, r := range s.reservations {
		if !r.Status.IsActive() || !r.Checkout.Before(now) {
			continue
		}
		r.Status = model.StatusExpired
		r.UpdatedAt = now
		out = append(out, *cloneReservation(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListReservations(_ context.Context, f model.ReservationFilter) ([]model.Reservation, int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var all []model.Reservation
	for _, r := range s.reservations {
		if f.CustomerID != nil && (r.CustomerID == nil || *r.CustomerID != *f.CustomerID) {
			continue
		}
		if f.HotelierID != nil {
			if r.HotelID == nil {
				continue
			}
			h, ok := s.hotels[*r.HotelID]
			if !ok || h.HotelierID != *f.HotelierID {
				continue
			}
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		all = append(all, *cloneReservation(r))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	total := len(all)
	limit := f.Limit
	if limit <= 0 {
		limit = 9
	}
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

// Create registers a user with a bcrypt-hashed password.
func (s *MemoryStore) Create(_ context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return 0, ErrEmailExists
		}
	}
	s.nextUserID++
	now := time.Now().UTC()
	s.users[s.nextUserID] = &model.User{
		ID: s.nextUserID, Email: email, PasswordHash: hash, Role: role,
		CreatedAt: now, UpdatedAt: now,
	}
	return s.nextUserID, nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, model.ErrUserNotFound
}

func (s *MemoryStore) GetByID(_ context.Context, id uint64) (*model.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) SetGatewayCustomerRef(_ context.Context, id uint64, ref string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	u.GatewayCustomerRef = &ref
	return nil
}

func (s *MemoryStore) SetConnectAccount(_ context.Context, id uint64, acct string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	u.ConnectAccount = &acct
	for _, h := range s.hotels {
		if h.HotelierID == id {
			h.ConnectAccount = &acct
		}
	}
	return nil
}

func statusIn(s model.ReservationStatus, set []model.ReservationStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func cloneReservation(r *model.Reservation) *model.Reservation {
	cp := *r
	cp.Lines = append([]model.RoomReservation(nil), r.Lines...)
	return &cp
}
