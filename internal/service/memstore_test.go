package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/queue"
	"github.com/gareci/bus-reservation/internal/repository"
)

// memDB is an in-memory stand-in for MySQL.  Row locks are real mutexes
// held until the surrounding transaction ends, and writes made by a
// failed transaction are undone.
type memDB struct {
	mu           sync.Mutex
	departures   map[uint64]model.Departure
	reservations map[uint64]model.Reservation
	payments     map[uint64]model.Payment
	policies     []model.Policy
	staff        []string
	refs         map[string]bool
	nextID       uint64

	depLocks map[uint64]*sync.Mutex
	resLocks map[uint64]*sync.Mutex

	// fault injection
	lockErrs    []error // consumed by successive LockForUpdate calls
	dupRefs     int     // Create reports this many reference collisions first
	policyErr   error
	policyReads int
	commits     int
	rollbacks   int
}

func newMemDB() *memDB {
	return &memDB{
		departures:   map[uint64]model.Departure{},
		reservations: map[uint64]model.Reservation{},
		payments:     map[uint64]model.Payment{},
		refs:         map[string]bool{},
		depLocks:     map[uint64]*sync.Mutex{},
		resLocks:     map[uint64]*sync.Mutex{},
	}
}

type memTx struct {
	locks []*sync.Mutex
	undo  []func()
}

type memTxKey struct{}

func memTxFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

func (db *memDB) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if memTxFrom(ctx) != nil {
		return fn(ctx)
	}
	tx := &memTx{}
	err := fn(context.WithValue(ctx, memTxKey{}, tx))

	db.mu.Lock()
	if err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		db.rollbacks++
	} else {
		db.commits++
	}
	db.mu.Unlock()

	for i := len(tx.locks) - 1; i >= 0; i-- {
		tx.locks[i].Unlock()
	}
	return err
}

// record registers an undo step for the transaction in ctx.  db.mu is held.
func (db *memDB) record(ctx context.Context, undo func()) {
	if tx := memTxFrom(ctx); tx != nil {
		tx.undo = append(tx.undo, undo)
	}
}

func (db *memDB) rowLock(ctx context.Context, locks map[uint64]*sync.Mutex, id uint64) error {
	tx := memTxFrom(ctx)
	if tx == nil {
		return errors.New("row lock outside transaction")
	}
	db.mu.Lock()
	l, ok := locks[id]
	if !ok {
		l = &sync.Mutex{}
		locks[id] = l
	}
	db.mu.Unlock()

	l.Lock()
	tx.locks = append(tx.locks, l)
	return nil
}

// seed stores r as-is, assigning an id and reference when missing.
func (db *memDB) seed(r model.Reservation) model.Reservation {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextID++
	r.ID = db.nextID
	if r.Reference == "" {
		r.Reference = fmt.Sprintf("SEED%08d", r.ID)
	}
	db.refs[r.Reference] = true
	db.reservations[r.ID] = r
	return r
}

func (db *memDB) reservation(id uint64) model.Reservation {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.reservations[id]
}

func (db *memDB) stats() (commits, rollbacks int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.commits, db.rollbacks
}

func sameDay(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

type memDepartures struct{ db *memDB }

func (s memDepartures) GetByID(_ context.Context, id uint64) (*model.Departure, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.departures[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (s memDepartures) LockForUpdate(ctx context.Context, id uint64) (bool, error) {
	s.db.mu.Lock()
	if len(s.db.lockErrs) > 0 {
		err := s.db.lockErrs[0]
		s.db.lockErrs = s.db.lockErrs[1:]
		if err != nil {
			s.db.mu.Unlock()
			return false, err
		}
	}
	_, ok := s.db.departures[id]
	s.db.mu.Unlock()
	if !ok {
		return false, repository.ErrNotFound
	}

	if err := s.db.rowLock(ctx, s.db.depLocks, id); err != nil {
		return false, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.departures[id].Active, nil
}

type memReservations struct{ db *memDB }

func (s memReservations) SumActiveSeats(_ context.Context, departureID uint64, travelDate time.Time) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	total := 0
	for _, r := range s.db.reservations {
		if r.DepartureID == departureID && sameDay(r.TravelDate, travelDate) && r.Status.IsActive() {
			total += r.SeatCount
		}
	}
	return total, nil
}

func (s memReservations) CountActiveByCustomer(_ context.Context, customerID uint64) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, r := range s.db.reservations {
		if r.CustomerID == customerID && r.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (s memReservations) Create(ctx context.Context, r *model.Reservation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.dupRefs > 0 {
		s.db.dupRefs--
		return repository.ErrDuplicateReference
	}
	if s.db.refs[r.Reference] {
		return repository.ErrDuplicateReference
	}
	s.db.nextID++
	r.ID = s.db.nextID
	s.db.reservations[r.ID] = *r
	s.db.refs[r.Reference] = true

	id, ref := r.ID, r.Reference
	s.db.record(ctx, func() {
		delete(s.db.reservations, id)
		delete(s.db.refs, ref)
	})
	return nil
}

func (s memReservations) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (s memReservations) GetByReference(_ context.Context, reference string) (*model.Reservation, error) {
	list := s.filter(func(r model.Reservation) bool { return r.Reference == reference })
	if len(list) == 0 {
		return nil, repository.ErrNotFound
	}
	return &list[0], nil
}

func (s memReservations) GetForUpdate(ctx context.Context, id uint64) (*model.Reservation, error) {
	if err := s.db.rowLock(ctx, s.db.resLocks, id); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s memReservations) UpdateStatus(ctx context.Context, r *model.Reservation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	prev, ok := s.db.reservations[r.ID]
	if !ok {
		return repository.ErrNotFound
	}
	s.db.reservations[r.ID] = *r
	s.db.record(ctx, func() { s.db.reservations[prev.ID] = prev })
	return nil
}

func (s memReservations) filter(keep func(r model.Reservation) bool) []model.Reservation {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []model.Reservation{}
	for _, r := range s.db.reservations {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s memReservations) ListExpired(_ context.Context, now time.Time, limit int) ([]uint64, error) {
	list := s.filter(func(r model.Reservation) bool {
		return (r.Status == model.StatusPendingValidation || r.Status == model.StatusValidated) &&
			r.ExpiresAt.Before(now)
	})
	ids := []uint64{}
	for _, r := range list {
		if len(ids) == limit {
			break
		}
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s memReservations) ListConfirmedForDate(_ context.Context, travelDate time.Time) ([]model.Reservation, error) {
	return s.filter(func(r model.Reservation) bool {
		return r.Status == model.StatusConfirmed && sameDay(r.TravelDate, travelDate)
	}), nil
}

func (s memReservations) ListByCustomer(_ context.Context, customerID uint64) ([]model.Reservation, error) {
	list := s.filter(func(r model.Reservation) bool { return r.CustomerID == customerID })
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (s memReservations) ListByDeparture(_ context.Context, departureID uint64, travelDate time.Time) ([]model.Reservation, error) {
	return s.filter(func(r model.Reservation) bool {
		return r.DepartureID == departureID && sameDay(r.TravelDate, travelDate)
	}), nil
}

type memPolicies struct{ db *memDB }

func (s memPolicies) GetActive(context.Context) (*model.Policy, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.policyReads++
	if s.db.policyErr != nil {
		return nil, s.db.policyErr
	}
	var best *model.Policy
	for i := range s.db.policies {
		p := s.db.policies[i]
		if p.Active && (best == nil || p.ID < best.ID) {
			best = &p
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}

func (s memPolicies) Create(_ context.Context, p *model.Policy) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.nextID++
	p.ID = s.db.nextID
	s.db.policies = append(s.db.policies, *p)
	return nil
}

func (s memPolicies) Replace(ctx context.Context, p *model.Policy) error {
	s.db.mu.Lock()
	for i := range s.db.policies {
		s.db.policies[i].Active = false
	}
	s.db.mu.Unlock()
	p.Active = true
	return s.Create(ctx, p)
}

func (s memPolicies) reads() int {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.policyReads
}

type memPayments struct{ db *memDB }

func (s memPayments) Create(ctx context.Context, p *model.Payment) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.nextID++
	p.ID = s.db.nextID
	s.db.payments[p.ID] = *p
	id := p.ID
	s.db.record(ctx, func() { delete(s.db.payments, id) })
	return nil
}

func (s memPayments) UpdateStatus(ctx context.Context, id uint64, status model.PaymentStatus) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	prev, ok := s.db.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	next := prev
	next.Status = status
	s.db.payments[id] = next
	s.db.record(ctx, func() { s.db.payments[id] = prev })
	return nil
}

func (s memPayments) ListByReservation(_ context.Context, reservationID uint64) ([]model.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []model.Payment{}
	for _, p := range s.db.payments {
		if p.ReservationID == reservationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memStaff struct{ db *memDB }

func (s memStaff) ListStaffEmails(context.Context) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return append([]string(nil), s.db.staff...), nil
}

// recordingNotifier keeps every event it is handed.
type recordingNotifier struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
}

func (n *recordingNotifier) Notify(ev queue.ReservationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) ofType(t queue.EventType) []queue.ReservationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []queue.ReservationEvent
	for _, ev := range n.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const (
	depSmall    uint64 = 1 // 10 seats, 10:00, 15.00 per seat
	depLarge    uint64 = 2 // 50 seats, 14:30, 20.00 per seat, 1.5x category
	depInactive uint64 = 3
)

var fixtureNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	db        *memDB
	clock     *testClock
	notes     *recordingNotifier
	log       *logrus.Logger
	hook      *logtest.Hook
	opts      []Option
	policies  *PolicyResolver
	avail     *AvailabilityCalculator
	admission *AdmissionController
	lifecycle *LifecycleMutator
	payments  *PaymentService
	queries   *ReservationQueries
	sweeper   *ExpirySweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemDB()
	db.departures[depSmall] = model.Departure{
		ID: depSmall, TripID: 1, BusID: 1, DepartureTime: model.TimeOfDay{Hour: 10},
		ArrivalTime: model.TimeOfDay{Hour: 16}, PriceCents: 1500, Active: true, Capacity: 10, MultiplierPct: 100,
	}
	db.departures[depLarge] = model.Departure{
		ID: depLarge, TripID: 2, BusID: 2, DepartureTime: model.TimeOfDay{Hour: 14, Minute: 30},
		ArrivalTime: model.TimeOfDay{Hour: 20}, PriceCents: 2000, Active: true, Capacity: 50, MultiplierPct: 150,
	}
	db.departures[depInactive] = model.Departure{
		ID: depInactive, TripID: 3, BusID: 3, DepartureTime: model.TimeOfDay{Hour: 9},
		PriceCents: 1000, Active: false, Capacity: 40, MultiplierPct: 100,
	}
	db.staff = []string{"ops@gareci.ci"}
	db.nextID = 100

	clock := &testClock{t: fixtureNow}
	log, hook := logtest.NewNullLogger()
	notes := &recordingNotifier{}
	opts := []Option{WithClock(clock.Now), WithLocation(time.UTC), WithRetryBackoff(0)}

	f := &fixture{db: db, clock: clock, notes: notes, log: log, hook: hook, opts: opts}
	f.policies = NewPolicyResolver(memPolicies{db}, db, log, 0, opts...)
	f.avail = NewAvailabilityCalculator(memDepartures{db}, memReservations{db}, log)
	f.admission = NewAdmissionController(AdmissionDeps{
		Tx:           db,
		Departures:   memDepartures{db},
		Reservations: memReservations{db},
		Policies:     f.policies,
		Availability: f.avail,
		Staff:        memStaff{db},
		Notifier:     notes,
		Log:          log,
	}, opts...)
	f.lifecycle = NewLifecycleMutator(LifecycleDeps{
		Tx:           db,
		Departures:   memDepartures{db},
		Reservations: memReservations{db},
		Policies:     f.policies,
		Notifier:     notes,
		Log:          log,
	}, opts...)
	f.payments = NewPaymentService(PaymentDeps{
		Tx:           db,
		Reservations: memReservations{db},
		Payments:     memPayments{db},
		Notifier:     notes,
		Log:          log,
	}, opts...)
	f.queries = NewReservationQueries(memReservations{db}, memPayments{db})
	f.sweeper = NewExpirySweeper(memReservations{db}, f.lifecycle, log, 100, time.Minute, opts...)
	return f
}

// day returns the travel date n days after the fixture's today.
func (f *fixture) day(n int) time.Time {
	return time.Date(2026, 3, 10+n, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) book(t *testing.T, dep, customer uint64, seats int) *model.Reservation {
	t.Helper()
	r, err := f.admission.Create(context.Background(), CreateInput{
		DepartureID: dep, TravelDate: f.day(1), CustomerID: customer, SeatCount: seats,
	})
	if err != nil {
		t.Fatalf("book %d seats on departure %d: %v", seats, dep, err)
	}
	return r
}

func (f *fixture) remaining(t *testing.T, dep uint64, date time.Time) int {
	t.Helper()
	n, err := f.avail.RemainingSeats(context.Background(), dep, date)
	if err != nil {
		t.Fatalf("remaining seats: %v", err)
	}
	return n
}

var staffMember = model.Identity{ID: 9, Staff: true}
