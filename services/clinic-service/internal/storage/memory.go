package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/geo"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

// MemoryStore keeps everything in process. It backs local development and
// tests and offers the same claim semantics as Repository: availability is an
// atomic flag flipped with compare-and-swap.
type MemoryStore struct {
	now func() time.Time

	mu       sync.RWMutex
	users    map[string]model.User
	emails   map[string]string
	clinics  map[string]model.Clinic
	slots    map[string]*memSlot
	slotKeys map[string]string
	bookings map[string]model.Booking
}

type memSlot struct {
	slot      model.TimeSlot
	available atomic.Bool
	bookingID string // guarded by MemoryStore.mu
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		users:    map[string]model.User{},
		emails:   map[string]string{},
		clinics:  map[string]model.Clinic{},
		slots:    map[string]*memSlot{},
		slotKeys: map[string]string{},
		bookings: map[string]model.Booking{},
	}
}

// SetClock overrides the store's notion of today.
func (m *MemoryStore) SetClock(now func() time.Time) { m.now = now }

func (m *MemoryStore) snapshot(s *memSlot) model.TimeSlot {
	out := s.slot
	out.IsAvailable = s.available.Load()
	out.BookingID = s.bookingID
	return out
}

func (m *MemoryStore) CreateSlots(_ context.Context, clinicID string, entries []model.SlotEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clinics[clinicID]; !ok {
		return 0, fmt.Errorf("clinic %s: %w", clinicID, model.ErrNotFound)
	}
	created := 0
	for _, e := range entries {
		key := clinicID + "|" + e.Key()
		if _, ok := m.slotKeys[key]; ok {
			continue
		}
		s := &memSlot{slot: model.TimeSlot{
			ID:        uuid.NewString(),
			ClinicID:  clinicID,
			Date:      model.Day(e.Date),
			StartTime: e.StartTime,
			EndTime:   e.EndTime,
		}}
		s.available.Store(true)
		m.slots[s.slot.ID] = s
		m.slotKeys[key] = s.slot.ID
		created++
	}
	return created, nil
}

func (m *MemoryStore) ListAvailable(_ context.Context, clinicID string, day *time.Time) ([]model.TimeSlot, error) {
	today := model.Day(m.now())

	m.mu.RLock()
	var out []model.TimeSlot
	for _, s := range m.slots {
		if s.slot.ClinicID != clinicID || !s.available.Load() {
			continue
		}
		if day != nil {
			if !s.slot.Date.Equal(model.Day(*day)) {
				continue
			}
		} else if s.slot.Date.Before(today) {
			continue
		}
		out = append(out, m.snapshot(s))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *MemoryStore) GetSlot(_ context.Context, slotID string) (model.SlotDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.slots[slotID]
	if !ok {
		return model.SlotDetail{}, fmt.Errorf("time slot %s: %w", slotID, model.ErrNotFound)
	}
	return model.SlotDetail{Slot: m.snapshot(s), Clinic: m.clinics[s.slot.ClinicID]}, nil
}

func (m *MemoryStore) TryClaim(_ context.Context, slotID string) (bool, error) {
	m.mu.RLock()
	s, ok := m.slots[slotID]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return s.available.CompareAndSwap(true, false), nil
}

func (m *MemoryStore) ReleaseClaim(_ context.Context, slotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[slotID]; ok && s.bookingID == "" {
		s.available.Store(true)
	}
	return nil
}

func (m *MemoryStore) CreateBooking(_ context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[b.UserID]; !ok {
		return fmt.Errorf("user %s: %w", b.UserID, model.ErrNotFound)
	}
	s, ok := m.slots[b.TimeSlotID]
	if !ok {
		return fmt.Errorf("time slot %s: %w", b.TimeSlotID, model.ErrNotFound)
	}
	if s.available.Load() || s.bookingID != "" {
		return fmt.Errorf("link slot %s: %w", b.TimeSlotID, model.ErrConflict)
	}
	b.CreatedAt = m.now().UTC()
	s.bookingID = b.ID
	m.bookings[b.ID] = *b
	return nil
}

func (m *MemoryStore) GetBooking(_ context.Context, id string) (model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
	}
	return b, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emails[u.Email]; ok {
		return fmt.Errorf("user %s: %w", u.Email, model.ErrConflict)
	}
	u.CreatedAt = m.now().UTC()
	m.users[u.ID] = *u
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) EnsureUser(ctx context.Context, u model.User) (string, error) {
	m.mu.RLock()
	id, ok := m.emails[u.Email]
	m.mu.RUnlock()
	if ok {
		return id, nil
	}
	if err := m.CreateUser(ctx, &u); err != nil {
		return "", err
	}
	return u.ID, nil
}

func (m *MemoryStore) GetClinic(_ context.Context, id string) (model.Clinic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clinics[id]
	if !ok {
		return model.Clinic{}, fmt.Errorf("clinic %s: %w", id, model.ErrNotFound)
	}
	return c, nil
}

func (m *MemoryStore) SearchableClinicsInBox(_ context.Context, box geo.Box) ([]model.Clinic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Clinic
	for _, c := range m.clinics {
		if c.IsSearchable && box.Contains(geo.Point{Lat: c.Latitude, Lng: c.Longitude}) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertClinic(_ context.Context, c model.Clinic) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clinics[c.ID]; ok {
		return false, nil
	}
	if _, ok := m.users[c.OwnerUserID]; !ok {
		return false, fmt.Errorf("owner %s: %w", c.OwnerUserID, model.ErrNotFound)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now().UTC()
	}
	m.clinics[c.ID] = c
	return true, nil
}
