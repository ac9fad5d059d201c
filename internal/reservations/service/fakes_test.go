package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	reservationserrors "loanbook/internal/reservations/errors"
	"loanbook/internal/reservations/events"
	"loanbook/internal/reservations/repository"
	"loanbook/internal/reservations/validator"
	"loanbook/pkg/clock"
	"loanbook/pkg/config"
	mongotx "loanbook/pkg/db/mongo"
	"loanbook/pkg/logger"
	"loanbook/pkg/model"
)

// memDB is an in-memory stand-in for the Mongo collections. Transactions are
// serialised and roll back by restoring a snapshot.
type memDB struct {
	mu   sync.Mutex
	txMu sync.Mutex

	items        map[int64]*model.Item
	reservations map[int64]*model.Reservation
	requests     map[int64]*model.Request
	models       map[int64]*model.DeviceModel
	counters     map[string]int64
	locks        map[int64]string

	markAcceptedErr      error
	findAllErr           error
	createReservationErr error
}

func newMemDB() *memDB {
	return &memDB{
		items:        map[int64]*model.Item{},
		reservations: map[int64]*model.Reservation{},
		requests:     map[int64]*model.Request{},
		models:       map[int64]*model.DeviceModel{},
		counters:     map[string]int64{},
		locks:        map[int64]string{},
	}
}

func (db *memDB) stores() repository.Stores {
	return repository.Stores{
		Items:        &fakeItems{db},
		Reservations: &fakeReservations{db},
		Requests:     &fakeRequests{db},
		DeviceModels: &fakeDeviceModels{db},
		Sequences:    &fakeSequences{db},
		Locker:       &fakeLocker{db},
		Tx:           &fakeTx{db},
	}
}

// seedItem stores an item with the next item id and returns it.
func (db *memDB) seedItem(name string, modelRef *int64) *model.Item {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.counters[repository.SequenceItems]++
	item := &model.Item{
		ID:             db.counters[repository.SequenceItems],
		Name:           name,
		ModelRef:       modelRef,
		ReservationIDs: []int64{},
	}
	db.items[item.ID] = cloneItem(item)
	return item
}

func (db *memDB) seedModel(id int64, name string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.models[id] = &model.DeviceModel{ID: id, DisplayName: name}
}

func (db *memDB) item(id int64) *model.Item {
	db.mu.Lock()
	defer db.mu.Unlock()
	if item, ok := db.items[id]; ok {
		return cloneItem(item)
	}
	return nil
}

func (db *memDB) reservation(id int64) *model.Reservation {
	db.mu.Lock()
	defer db.mu.Unlock()
	if r, ok := db.reservations[id]; ok {
		return cloneReservation(r)
	}
	return nil
}

func (db *memDB) reservationCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.reservations)
}

func (db *memDB) allReservations() []*model.Reservation {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*model.Reservation, 0, len(db.reservations))
	for _, r := range db.reservations {
		out = append(out, cloneReservation(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (db *memDB) heldLocks() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.locks)
}

type snapshot struct {
	items        map[int64]*model.Item
	reservations map[int64]*model.Reservation
	requests     map[int64]*model.Request
	counters     map[string]int64
}

func (db *memDB) snapshot() snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := snapshot{
		items:        map[int64]*model.Item{},
		reservations: map[int64]*model.Reservation{},
		requests:     map[int64]*model.Request{},
		counters:     map[string]int64{},
	}
	for k, v := range db.items {
		s.items[k] = cloneItem(v)
	}
	for k, v := range db.reservations {
		s.reservations[k] = cloneReservation(v)
	}
	for k, v := range db.requests {
		s.requests[k] = cloneRequest(v)
	}
	for k, v := range db.counters {
		s.counters[k] = v
	}
	return s
}

func (db *memDB) restore(s snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.items = s.items
	db.reservations = s.reservations
	db.requests = s.requests
	db.counters = s.counters
}

func cloneItem(item *model.Item) *model.Item {
	c := *item
	c.ReservationIDs = append([]int64{}, item.ReservationIDs...)
	if item.ModelRef != nil {
		ref := *item.ModelRef
		c.ModelRef = &ref
	}
	c.Available = false
	return &c
}

func cloneReservation(r *model.Reservation) *model.Reservation {
	c := *r
	c.ItemIDs = append([]int64{}, r.ItemIDs...)
	if r.RequestID != nil {
		id := *r.RequestID
		c.RequestID = &id
	}
	c.Active = false
	return &c
}

func cloneRequest(r *model.Request) *model.Request {
	c := *r
	c.SubRequests = append([]model.SubRequest{}, r.SubRequests...)
	if r.ReservationID != nil {
		id := *r.ReservationID
		c.ReservationID = &id
	}
	return &c
}

type fakeTx struct{ db *memDB }

func (t *fakeTx) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	snap := t.db.snapshot()
	if err := fn(ctx); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

type fakeItems struct{ db *memDB }

func (f *fakeItems) Create(_ context.Context, item *model.Item) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.items {
		if existing.LookupToken != "" && existing.LookupToken == item.LookupToken {
			return fmt.Errorf("duplicate lookup token")
		}
	}
	f.db.items[item.ID] = cloneItem(item)
	return nil
}

func (f *fakeItems) FindByID(_ context.Context, id int64) (*model.Item, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	item, ok := f.db.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", reservationserrors.ErrItemNotFound, id)
	}
	return cloneItem(item), nil
}

func (f *fakeItems) FindByIDs(_ context.Context, ids []int64) ([]*model.Item, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []*model.Item{}
	for _, id := range ids {
		if item, ok := f.db.items[id]; ok {
			out = append(out, cloneItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeItems) FindByLookupToken(_ context.Context, token string) (*model.Item, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, item := range f.db.items {
		if item.LookupToken == token {
			return cloneItem(item), nil
		}
	}
	return nil, reservationserrors.ErrItemNotFound
}

func (f *fakeItems) FindAll(_ context.Context) ([]*model.Item, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.findAllErr != nil {
		return nil, f.db.findAllErr
	}
	out := make([]*model.Item, 0, len(f.db.items))
	for _, item := range f.db.items {
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeItems) AttachReservation(_ context.Context, reservationID int64, itemIDs []int64) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var matched int64
	for _, id := range itemIDs {
		if item, ok := f.db.items[id]; ok {
			item.ReservationIDs = append(item.ReservationIDs, reservationID)
			matched++
		}
	}
	return matched, nil
}

func (f *fakeItems) DetachReservation(_ context.Context, reservationID int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, item := range f.db.items {
		kept := item.ReservationIDs[:0]
		for _, id := range item.ReservationIDs {
			if id != reservationID {
				kept = append(kept, id)
			}
		}
		item.ReservationIDs = kept
	}
	return nil
}

func (f *fakeItems) Delete(_ context.Context, id int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.items[id]; !ok {
		return fmt.Errorf("%w: %d", reservationserrors.ErrItemNotFound, id)
	}
	delete(f.db.items, id)
	return nil
}

type fakeReservations struct{ db *memDB }

func (f *fakeReservations) Create(_ context.Context, r *model.Reservation) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.createReservationErr != nil {
		return f.db.createReservationErr
	}
	if _, exists := f.db.reservations[r.ID]; exists {
		return fmt.Errorf("duplicate reservation id %d", r.ID)
	}
	f.db.reservations[r.ID] = cloneReservation(r)
	return nil
}

func (f *fakeReservations) FindByID(_ context.Context, id int64) (*model.Reservation, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", reservationserrors.ErrReservationNotFound, id)
	}
	return cloneReservation(r), nil
}

func (f *fakeReservations) FindByIDs(_ context.Context, ids []int64) ([]*model.Reservation, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []*model.Reservation{}
	for _, id := range ids {
		if r, ok := f.db.reservations[id]; ok {
			out = append(out, cloneReservation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeReservations) FindAll(ctx context.Context) ([]*model.Reservation, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := make([]*model.Reservation, 0, len(f.db.reservations))
	for _, r := range f.db.reservations {
		out = append(out, cloneReservation(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeReservations) FindPage(ctx context.Context, limit int, offset int64) ([]*model.Reservation, error) {
	all, _ := f.FindAll(ctx)
	sort.SliceStable(all, func(i, j int) bool { return all[i].StartDate.Before(all[j].StartDate) })
	if offset >= int64(len(all)) {
		return []*model.Reservation{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeReservations) FindOpenByItem(_ context.Context, itemID int64) ([]*model.Reservation, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []*model.Reservation{}
	for _, r := range f.db.reservations {
		if !r.Completed && r.ContainsItem(itemID) {
			out = append(out, cloneReservation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeReservations) Count(_ context.Context) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return int64(len(f.db.reservations)), nil
}

func (f *fakeReservations) MarkCompleted(_ context.Context, id int64, endedAt time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.reservations[id]
	if !ok || r.Completed {
		return false, nil
	}
	r.Completed = true
	r.PlannedEndDate = endedAt
	return true, nil
}

func (f *fakeReservations) Delete(_ context.Context, id int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.reservations[id]; !ok {
		return fmt.Errorf("%w: %d", reservationserrors.ErrReservationNotFound, id)
	}
	delete(f.db.reservations, id)
	return nil
}

func (f *fakeReservations) DetachItem(_ context.Context, itemID int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, r := range f.db.reservations {
		kept := r.ItemIDs[:0]
		for _, id := range r.ItemIDs {
			if id != itemID {
				kept = append(kept, id)
			}
		}
		r.ItemIDs = kept
	}
	return nil
}

type fakeRequests struct{ db *memDB }

func (f *fakeRequests) Create(_ context.Context, r *model.Request) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.requests[r.ID] = cloneRequest(r)
	return nil
}

func (f *fakeRequests) FindByID(_ context.Context, id int64) (*model.Request, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", reservationserrors.ErrRequestNotFound, id)
	}
	return cloneRequest(r), nil
}

func (f *fakeRequests) pending() []*model.Request {
	out := []*model.Request{}
	for _, r := range f.db.requests {
		if !r.RequestAccepted {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeRequests) FindPending(_ context.Context, limit int, offset int64) ([]*model.Request, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	all := f.pending()
	if offset >= int64(len(all)) {
		return []*model.Request{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeRequests) CountPending(_ context.Context) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return int64(len(f.pending())), nil
}

func (f *fakeRequests) MarkAccepted(_ context.Context, id, reservationID int64, modifiedAt time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.markAcceptedErr != nil {
		return f.db.markAcceptedErr
	}
	r, ok := f.db.requests[id]
	if !ok || r.RequestAccepted {
		return fmt.Errorf("%w: %d", reservationserrors.ErrRequestNotFound, id)
	}
	r.RequestAccepted = true
	r.ReservationID = &reservationID
	r.ModifiedAt = modifiedAt
	return nil
}

func (f *fakeRequests) DeletePending(_ context.Context, id int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.requests[id]
	if !ok || r.RequestAccepted {
		return fmt.Errorf("%w: %d", reservationserrors.ErrRequestNotFound, id)
	}
	delete(f.db.requests, id)
	return nil
}

type fakeDeviceModels struct{ db *memDB }

func (f *fakeDeviceModels) FindByIDs(_ context.Context, ids []int64) ([]*model.DeviceModel, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []*model.DeviceModel{}
	for _, id := range ids {
		if m, ok := f.db.models[id]; ok {
			c := *m
			out = append(out, &c)
		}
	}
	return out, nil
}

type fakeSequences struct{ db *memDB }

func (f *fakeSequences) Next(_ context.Context, name string) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.counters[name]++
	return f.db.counters[name], nil
}

type fakeLocker struct{ db *memDB }

func (f *fakeLocker) Lock(_ context.Context, itemID int64, owner string, _ time.Duration) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, held := f.db.locks[itemID]; held {
		return fmt.Errorf("%w: item %d", reservationserrors.ErrLockBusy, itemID)
	}
	f.db.locks[itemID] = owner
	return nil
}

func (f *fakeLocker) Unlock(_ context.Context, itemID int64, owner string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.locks[itemID] == owner {
		delete(f.db.locks, itemID)
	}
	return nil
}

type recordedEvent struct {
	Type          events.EventType
	ReservationID int64
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, eventType events.EventType, r *model.Reservation, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, ReservationID: r.ID})
	return p.err
}

func (p *fakePublisher) recorded() []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedEvent{}, p.events...)
}

// fixture wires every service over one memDB.
type fixture struct {
	db           *memDB
	clock        *clock.Fixed
	publisher    *fakePublisher
	coordinator  ReservationCoordinator
	triage       RequestTriage
	requests     RequestService
	items        ItemService
	availability AvailabilityService
}

func newFixture(now time.Time) *fixture {
	cfg := &config.Config{
		Log:     logger.Nop(),
		LockTTL: config.DefaultLockTTL,
	}
	db := newMemDB()
	stores := db.stores()
	clk := clock.NewFixed(now)
	publisher := &fakePublisher{}
	v := validator.New(cfg.Log)

	coordinator := NewReservationCoordinator(stores, v, publisher, clk, cfg)
	triage := NewRequestTriage(stores, v, cfg)
	return &fixture{
		db:           db,
		clock:        clk,
		publisher:    publisher,
		coordinator:  coordinator,
		triage:       triage,
		requests:     NewRequestService(stores, triage, coordinator, v, clk, cfg),
		items:        NewItemService(stores, v, clk, cfg),
		availability: NewAvailabilityService(stores, clk, cfg),
	}
}

func date(month time.Month, day, hour int) time.Time {
	return time.Date(2024, month, day, hour, 0, 0, 0, time.UTC)
}

func newCandidate(name string, start, end time.Time) *model.Reservation {
	return &model.Reservation{Name: name, StartDate: start, PlannedEndDate: end}
}
