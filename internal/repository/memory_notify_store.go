package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/finflow/finqueue/internal/domain"
)

// MemoryNotifyStore is the in-memory NotifyStore twin, used in tests and
// infrastructure-free deployments.
type MemoryNotifyStore struct {
	mu         sync.RWMutex
	deliveries []*domain.DeliveryResult
	devices    map[string]*domain.DeviceToken // keyed user_id + "/" + device_id
	prefs      map[string]*domain.Preferences
}

func NewMemoryNotifyStore() *MemoryNotifyStore {
	return &MemoryNotifyStore{
		devices: make(map[string]*domain.DeviceToken),
		prefs:   make(map[string]*domain.Preferences),
	}
}

func deviceKey(userID, deviceID string) string { return userID + "/" + deviceID }

func (s *MemoryNotifyStore) AppendDelivery(_ context.Context, d *domain.DeliveryResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *d
	s.deliveries = append(s.deliveries, &clone)
	return nil
}

func (s *MemoryNotifyStore) MarkDelivered(_ context.Context, deliveryID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deliveries {
		if d.ID == deliveryID && d.DeliveredAt == nil {
			t := at
			d.DeliveredAt = &t
			d.Status = domain.DeliveryDelivered
		}
	}
	return nil
}

func (s *MemoryNotifyStore) CountDeliveries(_ context.Context) (map[domain.Channel]map[domain.DeliveryStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.Channel]map[domain.DeliveryStatus]int)
	for _, d := range s.deliveries {
		if counts[d.Channel] == nil {
			counts[d.Channel] = make(map[domain.DeliveryStatus]int)
		}
		counts[d.Channel][d.Status]++
	}
	return counts, nil
}

func (s *MemoryNotifyStore) ListDeliveries(_ context.Context, userID string, limit, offset int) ([]*domain.DeliveryResult, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.DeliveryResult
	for _, d := range s.deliveries {
		if d.UserID == userID {
			clone := *d
			matched = append(matched, &clone)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].SentAt.After(matched[j].SentAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *MemoryNotifyStore) UpsertDevice(_ context.Context, t *domain.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deviceKey(t.UserID, t.DeviceID)
	now := time.Now().UTC()
	if existing, ok := s.devices[key]; ok {
		existing.Token = t.Token
		existing.Platform = t.Platform
		existing.IsActive = true
		existing.LastUsed = now
		return nil
	}
	clone := *t
	clone.IsActive = true
	clone.LastUsed = now
	clone.CreatedAt = now
	s.devices[key] = &clone
	return nil
}

func (s *MemoryNotifyStore) DeactivateDevice(_ context.Context, userID, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.devices[deviceKey(userID, deviceID)]
	if !ok {
		return domain.ErrNotFound
	}
	t.IsActive = false
	return nil
}

func (s *MemoryNotifyStore) TouchDevice(_ context.Context, userID, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.devices[deviceKey(userID, deviceID)]; ok {
		t.LastUsed = time.Now().UTC()
	}
	return nil
}

func (s *MemoryNotifyStore) ActiveDevices(_ context.Context, userID string) ([]*domain.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var devices []*domain.DeviceToken
	for _, t := range s.devices {
		if t.UserID == userID && t.IsActive {
			clone := *t
			devices = append(devices, &clone)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].DeviceID < devices[j].DeviceID })
	return devices, nil
}

func (s *MemoryNotifyStore) GetPreferences(_ context.Context, userID string) (*domain.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *p
	clone.Types = make(map[domain.NotificationType]domain.ChannelPrefs, len(p.Types))
	for k, v := range p.Types {
		clone.Types[k] = v
	}
	return &clone, nil
}

func (s *MemoryNotifyStore) SavePreferences(_ context.Context, p *domain.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *p
	clone.UpdatedAt = time.Now().UTC()
	s.prefs[p.UserID] = &clone
	return nil
}

var _ NotifyStore = (*MemoryNotifyStore)(nil)
