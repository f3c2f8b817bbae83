package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"game-price-tracker/internal/cheapshark"
	"game-price-tracker/internal/model"
)

var (
	errDuplicate = errors.New("duplicate deal id")
	errDBDown    = errors.New("connection refused")
)

// memStore is an in-memory snapshot store implementing every store interface.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	games   map[int64]*model.Game
	deals   map[int64]*model.Deal
	history []*model.PriceHistory
	alerts  []*model.PriceAlert

	// failures injected by tests, keyed by upstream deal id
	lookupErr map[string]error
	createErr map[string]error
	updateErr map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		games:     make(map[int64]*model.Game),
		deals:     make(map[int64]*model.Deal),
		lookupErr: make(map[string]error),
		createErr: make(map[string]error),
		updateErr: make(map[string]error),
	}
}

func (m *memStore) stores() Stores {
	return Stores{Games: gameStore{m}, Deals: dealStore{m}, History: historyStore{m}, Alerts: alertStore{m}}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addGame(externalID, title string) *model.Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := &model.Game{ID: m.id(), ExternalID: externalID, Title: title, CreatedAt: time.Now()}
	m.games[g.ID] = g
	return g
}

func (m *memStore) addDeal(gameID int64, dealID string, price float64, onSale bool) *model.Deal {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &model.Deal{ID: m.id(), GameID: gameID, DealID: dealID, StoreName: model.Ptr("Steam"), CurrentPrice: price, IsOnSale: onSale, CreatedAt: time.Now()}
	m.deals[d.ID] = d
	return d
}

func (m *memStore) dealByExternal(dealID string) *model.Deal {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deals {
		if d.DealID == dealID {
			cp := *d
			return &cp
		}
	}
	return nil
}

func (m *memStore) dealCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deals)
}

func (m *memStore) historyFor(dealID int64) []*model.PriceHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PriceHistory
	for _, h := range m.history {
		if h.DealID == dealID {
			out = append(out, h)
		}
	}
	return out
}

func (m *memStore) alertsOf(t model.AlertType) []*model.PriceAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PriceAlert
	for _, a := range m.alerts {
		if a.AlertType == t {
			out = append(out, a)
		}
	}
	return out
}

func (m *memStore) alertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

type gameStore struct{ m *memStore }

func (s gameStore) GetByID(_ context.Context, id int64) (*model.Game, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	g, ok := s.m.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return g, nil
}

func (s gameStore) GetByExternalID(_ context.Context, externalID string) (*model.Game, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, g := range s.m.games {
		if g.ExternalID == externalID {
			return g, nil
		}
	}
	return nil, ErrGameNotFound
}

func (s gameStore) GetOrCreate(ctx context.Context, externalID, title string, imageURL *string) (*model.Game, bool, error) {
	if g, err := s.GetByExternalID(ctx, externalID); err == nil {
		return g, false, nil
	}
	g := s.m.addGame(externalID, title)
	g.ImageURL = imageURL
	return g, true, nil
}

func (s gameStore) List(_ context.Context, offset, limit int) ([]*model.Game, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]*model.Game, 0, len(s.m.games))
	for _, g := range s.m.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, offset, limit), nil
}

func (s gameStore) Delete(_ context.Context, id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.games[id]; !ok {
		return ErrGameNotFound
	}
	delete(s.m.games, id)
	for did, d := range s.m.deals {
		if d.GameID == id {
			s.m.deleteDealLocked(did)
		}
	}
	return nil
}

func (m *memStore) deleteDealLocked(id int64) {
	delete(m.deals, id)
	history := m.history[:0]
	for _, h := range m.history {
		if h.DealID != id {
			history = append(history, h)
		}
	}
	m.history = history
	alerts := m.alerts[:0]
	for _, a := range m.alerts {
		if a.DealID != id {
			alerts = append(alerts, a)
		}
	}
	m.alerts = alerts
}

type dealStore struct{ m *memStore }

func (s dealStore) Create(_ context.Context, d *model.Deal) (*model.Deal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.createErr[d.DealID]; err != nil {
		return nil, err
	}
	for _, existing := range s.m.deals {
		if existing.DealID == d.DealID {
			return nil, errDuplicate
		}
	}
	cp := *d
	cp.ID = s.m.id()
	cp.CreatedAt = time.Now()
	s.m.deals[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s dealStore) GetByID(_ context.Context, id int64) (*model.Deal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d, ok := s.m.deals[id]
	if !ok {
		return nil, ErrDealNotFound
	}
	cp := *d
	return &cp, nil
}

func (s dealStore) GetByDealID(_ context.Context, dealID string) (*model.Deal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.lookupErr[dealID]; err != nil {
		return nil, err
	}
	for _, d := range s.m.deals {
		if d.DealID == dealID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDealNotFound
}

func (s dealStore) ListByGame(_ context.Context, gameID int64) ([]*model.Deal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*model.Deal
	for _, d := range s.m.deals {
		if d.GameID == gameID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s dealStore) List(_ context.Context, offset, limit int) ([]*model.Deal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]*model.Deal, 0, len(s.m.deals))
	for _, d := range s.m.deals {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, offset, limit), nil
}

func (s dealStore) ListOnSale(ctx context.Context, limit int) ([]*model.Deal, error) {
	all, _ := s.List(ctx, 0, 1<<30)
	var out []*model.Deal
	for _, d := range all {
		if d.IsOnSale {
			out = append(out, d)
		}
	}
	return page(out, 0, limit), nil
}

func (s dealStore) Update(_ context.Context, id int64, p model.DealPatch) (*model.Deal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d, ok := s.m.deals[id]
	if !ok {
		return nil, ErrDealNotFound
	}
	if err := s.m.updateErr[d.DealID]; err != nil {
		return nil, err
	}
	if p.CurrentPrice != nil {
		d.CurrentPrice = *p.CurrentPrice
	}
	if p.OriginalPrice != nil || p.Overwrite {
		d.OriginalPrice = p.OriginalPrice
	}
	if p.DiscountPercentage != nil {
		d.DiscountPercentage = *p.DiscountPercentage
	}
	if p.IsOnSale != nil {
		d.IsOnSale = *p.IsOnSale
	}
	if p.URL != nil || p.Overwrite {
		d.URL = p.URL
	}
	if p.LastCheckedAt != nil {
		d.LastCheckedAt = p.LastCheckedAt
	}
	cp := *d
	return &cp, nil
}

func (s dealStore) Delete(_ context.Context, id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.deals[id]; !ok {
		return ErrDealNotFound
	}
	s.m.deleteDealLocked(id)
	return nil
}

type historyStore struct{ m *memStore }

func (s historyStore) Create(_ context.Context, dealID int64, price, discount float64, checkedAt time.Time) (*model.PriceHistory, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	h := &model.PriceHistory{ID: s.m.id(), DealID: dealID, Price: price, DiscountPercent: discount, CheckedAt: checkedAt}
	s.m.history = append(s.m.history, h)
	return h, nil
}

func (s historyStore) ListByDeal(_ context.Context, dealID int64, limit int) ([]*model.PriceHistory, error) {
	out := s.m.historyFor(dealID)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, 0, limit), nil
}

func (s historyStore) Latest(ctx context.Context, dealID int64) (*model.PriceHistory, error) {
	out, _ := s.ListByDeal(ctx, dealID, 1)
	if len(out) == 0 {
		return nil, ErrHistoryNotFound
	}
	return out[0], nil
}

type alertStore struct{ m *memStore }

func (s alertStore) Create(_ context.Context, in model.NewPriceAlert) (*model.PriceAlert, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a := &model.PriceAlert{
		ID:                 s.m.id(),
		DealID:             in.DealID,
		AlertType:          in.AlertType,
		PreviousPrice:      in.PreviousPrice,
		NewPrice:           in.NewPrice,
		DiscountPercentage: in.DiscountPercentage,
		Message:            in.Message,
		CreatedAt:          time.Now(),
	}
	s.m.alerts = append(s.m.alerts, a)
	return a, nil
}

func (s alertStore) filter(keep func(*model.PriceAlert) bool) []*model.PriceAlert {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*model.PriceAlert
	for i := len(s.m.alerts) - 1; i >= 0; i-- {
		if keep(s.m.alerts[i]) {
			out = append(out, s.m.alerts[i])
		}
	}
	return out
}

func (s alertStore) ListUnread(_ context.Context, limit int) ([]*model.PriceAlert, error) {
	return page(s.filter(func(a *model.PriceAlert) bool { return !a.IsRead }), 0, limit), nil
}

func (s alertStore) List(_ context.Context, offset, limit int) ([]*model.PriceAlert, error) {
	return page(s.filter(func(*model.PriceAlert) bool { return true }), offset, limit), nil
}

func (s alertStore) ListByDeal(_ context.Context, dealID int64, limit int) ([]*model.PriceAlert, error) {
	return page(s.filter(func(a *model.PriceAlert) bool { return a.DealID == dealID }), 0, limit), nil
}

func (s alertStore) GetByID(_ context.Context, id int64) (*model.PriceAlert, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, a := range s.m.alerts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAlertNotFound
}

func (s alertStore) MarkRead(_ context.Context, id int64) (*model.PriceAlert, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, a := range s.m.alerts {
		if a.ID == id {
			a.IsRead = true
			return a, nil
		}
	}
	return nil, ErrAlertNotFound
}

func (s alertStore) MarkAllRead(_ context.Context) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for _, a := range s.m.alerts {
		if !a.IsRead {
			a.IsRead = true
			n++
		}
	}
	return n, nil
}

// fakeSource serves canned offers keyed by game external id.
type fakeSource struct {
	mu      sync.Mutex
	offers  map[string]*model.GameOffers
	errs    map[string]error
	search  []model.Offer
	calls   int
	onFetch func(gameID string)
}

func newFakeSource() *fakeSource {
	return &fakeSource{offers: make(map[string]*model.GameOffers), errs: make(map[string]error)}
}

func (f *fakeSource) set(gameID, title string, offers ...model.Offer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers[gameID] = &model.GameOffers{Title: title, Offers: offers}
}

func (f *fakeSource) SearchGames(_ context.Context, _ string, limit int) ([]model.Offer, error) {
	return page(f.search, 0, limit), nil
}

func (f *fakeSource) GetGameOffers(_ context.Context, gameID string) (*model.GameOffers, error) {
	f.mu.Lock()
	f.calls++
	hook := f.onFetch
	err := f.errs[gameID]
	offers, ok := f.offers[gameID]
	f.mu.Unlock()

	if hook != nil {
		hook(gameID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cheapshark.ErrNotFound
	}
	cp := *offers
	cp.Offers = append([]model.Offer(nil), offers.Offers...)
	return &cp, nil
}

func (f *fakeSource) GetDeal(_ context.Context, dealID string) (*model.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, offers := range f.offers {
		for _, o := range offers.Offers {
			if o.DealID == dealID {
				cp := o
				return &cp, nil
			}
		}
	}
	return nil, cheapshark.ErrNotFound
}

func (f *fakeSource) ListDeals(_ context.Context, q model.DealsQuery) ([]model.Offer, error) {
	return page(f.search, 0, q.Limit), nil
}

func (f *fakeSource) ListStores(context.Context) ([]model.Store, error) {
	return []model.Store{{ID: "1", Name: "Steam", IsActive: true}}, nil
}

func offer(dealID string, price float64, onSale bool) model.Offer {
	o := model.Offer{DealID: dealID, StoreID: "1", StoreName: "Steam", Price: price, URL: "https://example.test/" + dealID, IsOnSale: onSale}
	if onSale {
		o.OriginalPrice = model.Ptr(59.99)
		o.DiscountPercentage = model.Round2((59.99 - price) / 59.99 * 100)
	}
	return o
}
