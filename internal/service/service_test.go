package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sivanpabraj/studio-m/internal/model"
	"github.com/sivanpabraj/studio-m/internal/pricing"
	"github.com/sivanpabraj/studio-m/internal/ratelimit"
	"github.com/sivanpabraj/studio-m/internal/repository"
	"github.com/sivanpabraj/studio-m/internal/session"
)

type stubRepo struct {
	customers    map[int64]*model.Customer
	reservations map[string]*model.Reservation
	drafts       map[int64]*model.Draft
	admins       map[int64]bool
	actions      []string
	nextID       int64

	codeCollisions int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		customers:    make(map[int64]*model.Customer),
		reservations: make(map[string]*model.Reservation),
		drafts:       make(map[int64]*model.Draft),
		admins:       make(map[int64]bool),
	}
}

func (r *stubRepo) Close() error { return nil }

func (r *stubRepo) CustomerByActor(_ context.Context, actorID int64) (*model.Customer, error) {
	c, ok := r.customers[actorID]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	return c, nil
}

func (r *stubRepo) CreateReservation(_ context.Context, cust model.Customer, res *model.Reservation) (int64, error) {
	if r.codeCollisions > 0 {
		r.codeCollisions--
		return 0, repository.ErrCodeExists
	}
	if _, ok := r.reservations[res.Code]; ok {
		return 0, repository.ErrCodeExists
	}
	if _, ok := r.customers[cust.ActorID]; !ok {
		r.nextID++
		cust.ID = r.nextID
		r.customers[cust.ActorID] = &cust
	}
	r.nextID++
	res.ID = r.nextID
	id := r.customers[cust.ActorID].ID
	res.CustomerID = &id
	stored := *res
	r.reservations[res.Code] = &stored
	return res.ID, nil
}

func (r *stubRepo) ReservationByCode(_ context.Context, code string) (*model.Reservation, error) {
	res, ok := r.reservations[code]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	return res, nil
}

func (r *stubRepo) ReservationsByActor(_ context.Context, actorID int64, _ int) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, res := range r.reservations {
		if res.ActorID == actorID {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (r *stubRepo) SearchReservations(_ context.Context, query string) ([]model.Reservation, error) {
	if res, ok := r.reservations[query]; ok {
		return []model.Reservation{*res}, nil
	}
	return nil, nil
}

func (r *stubRepo) UpdateReservationStatus(_ context.Context, code string, booking model.BookingStatus, payment model.PaymentStatus) error {
	res, ok := r.reservations[code]
	if !ok {
		return repository.ErrReservationNotFound
	}
	if booking != "" {
		res.BookingStatus = booking
	}
	if payment != "" {
		res.PaymentStatus = payment
	}
	return nil
}

func (r *stubRepo) UpdatePaymentInfo(_ context.Context, code string, status model.PaymentStatus, method, transactionID string) error {
	res, ok := r.reservations[code]
	if !ok {
		return repository.ErrReservationNotFound
	}
	res.PaymentStatus = status
	res.PaymentMethod = method
	res.TransactionID = transactionID
	return nil
}

func (r *stubRepo) SaveDraft(_ context.Context, actorID int64, fields []byte, state string) error {
	r.drafts[actorID] = &model.Draft{ActorID: actorID, Fields: fields, State: state, SavedAt: time.Now()}
	return nil
}

func (r *stubRepo) LoadDraft(_ context.Context, actorID int64) (*model.Draft, error) {
	d, ok := r.drafts[actorID]
	if !ok {
		return nil, repository.ErrDraftNotFound
	}
	return d, nil
}

func (r *stubRepo) DeleteDraft(_ context.Context, actorID int64) error {
	delete(r.drafts, actorID)
	return nil
}

func (r *stubRepo) DeleteExpiredDrafts(_ context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	var n int64
	for id, d := range r.drafts {
		if d.SavedAt.Before(cutoff) {
			delete(r.drafts, id)
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) IsAdmin(_ context.Context, actorID int64) (bool, error) {
	return r.admins[actorID], nil
}

func (r *stubRepo) AddAdmin(_ context.Context, a model.Admin) error {
	if r.admins[a.ActorID] {
		return repository.ErrAdminExists
	}
	r.admins[a.ActorID] = true
	return nil
}

func (r *stubRepo) LogAction(_ context.Context, _ int64, action, _ string) error {
	r.actions = append(r.actions, action)
	return nil
}

func (r *stubRepo) Stats(_ context.Context) (*model.Stats, error) {
	return &model.Stats{
		TotalCustomers:    int64(len(r.customers)),
		TotalReservations: int64(len(r.reservations)),
	}, nil
}

func newTestService(repo *stubRepo, opts Options) *Service {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), map[ratelimit.Class]ratelimit.Rule{
		ratelimit.ClassGeneral: {Limit: 1000, Window: time.Minute},
		ratelimit.ClassSearch:  {Limit: 1000, Window: time.Minute},
		ratelimit.ClassButton:  {Limit: 1000, Window: time.Minute},
	})
	return NewService(repo, limiter, pricing.NewCalculator(pricing.DefaultRates()), nil, nil, opts)
}

func drive(t *testing.T, s *Service, actorID int64, inputs []string) *EventResult {
	t.Helper()
	var last *EventResult
	for _, in := range inputs {
		r, err := s.HandleEvent(context.Background(), actorID, ratelimit.ClassGeneral, in)
		if err != nil {
			t.Fatalf("HandleEvent(%q): %v", in, err)
		}
		last = r
	}
	return last
}

var birthdayInputs = []string{
	"", // открытие диалога
	"Alice", "Smith", "09123456789", "alice@example.com",
	"birthday",
	"1402/05/12", "18:30", "Main hall", "3 hours", "skip",
	"2", "fullhd", "no", "1",
}

func TestHandleEventFullFlow(t *testing.T) {
	repo := newStubRepo()
	s := newTestService(repo, Options{})

	r := drive(t, s, 100, birthdayInputs)
	if r.State != session.StateReviewingSummary {
		t.Fatalf("state = %q, want %q", r.State, session.StateReviewingSummary)
	}
	if len(r.Summary) == 0 {
		t.Fatal("summary must be presented before confirmation")
	}

	final, err := s.HandleEvent(context.Background(), 100, ratelimit.ClassGeneral, CommandConfirm)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if final.Code == "" || len(final.Code) != 6 {
		t.Fatalf("code = %q, want 6 characters", final.Code)
	}
	if final.Breakdown == nil || final.Breakdown.Total != 545000 {
		t.Fatalf("breakdown = %+v, want total 545000", final.Breakdown)
	}
	if final.Breakdown.Deposit != 272500 {
		t.Fatalf("deposit = %d, want 272500", final.Breakdown.Deposit)
	}

	res, ok := repo.reservations[final.Code]
	if !ok {
		t.Fatalf("reservation %q not persisted", final.Code)
	}
	if res.ActorID != 100 || res.BookingStatus != model.BookingPending || res.PaymentStatus != model.PaymentPending {
		t.Fatalf("unexpected reservation: %+v", res)
	}
	if _, ok := repo.drafts[100]; ok {
		t.Fatal("draft must be discarded after booking")
	}
	if len(repo.actions) == 0 || repo.actions[0] != "reservation_created" {
		t.Fatalf("audit actions = %v", repo.actions)
	}
}

func TestHandleEventReturningCustomerSkipsContactInfo(t *testing.T) {
	repo := newStubRepo()
	repo.customers[200] = &model.Customer{ID: 1, ActorID: 200, DisplayName: "Bob Lee", Phone: "09123456789"}
	s := newTestService(repo, Options{})

	r, err := s.HandleEvent(context.Background(), 200, ratelimit.ClassGeneral, "")
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if r.State != session.StateSelectingServiceType {
		t.Fatalf("state = %q, want %q", r.State, session.StateSelectingServiceType)
	}
}

func TestHandleEventValidationErrorKeepsState(t *testing.T) {
	repo := newStubRepo()
	s := newTestService(repo, Options{})

	drive(t, s, 300, []string{"", "Alice"})
	_, err := s.HandleEvent(context.Background(), 300, ratelimit.ClassGeneral, "X")
	var verr *session.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if verr.Field != "family_name" {
		t.Fatalf("field = %q, want family_name", verr.Field)
	}

	r, err := s.HandleEvent(context.Background(), 300, ratelimit.ClassGeneral, "Smith")
	if err != nil {
		t.Fatalf("retry after validation error: %v", err)
	}
	if r.State != session.StateCollectingPhone {
		t.Fatalf("state = %q, want %q", r.State, session.StateCollectingPhone)
	}
}

func TestHandleEventCancelAndResume(t *testing.T) {
	repo := newStubRepo()
	s := newTestService(repo, Options{})

	drive(t, s, 400, []string{"", "Alice", "Smith", "09123456789"})
	r, err := s.HandleEvent(context.Background(), 400, ratelimit.ClassGeneral, CommandCancel)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !r.Canceled {
		t.Fatal("want Canceled result")
	}
	if _, ok := repo.drafts[400]; !ok {
		t.Fatal("cancel must keep the draft")
	}

	r, err = s.HandleEvent(context.Background(), 400, ratelimit.ClassGeneral, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !r.Resumed || r.State != session.StateCollectingEmail {
		t.Fatalf("resume result = %+v, want resumed at %q", r, session.StateCollectingEmail)
	}
}

func TestHandleEventRestartDiscardsDraft(t *testing.T) {
	repo := newStubRepo()
	s := newTestService(repo, Options{})

	drive(t, s, 450, []string{"", "Alice", "Smith", "09123456789"})
	if _, ok := repo.drafts[450]; !ok {
		t.Fatal("draft not saved during flow")
	}

	r, err := s.HandleEvent(context.Background(), 450, ratelimit.ClassGeneral, CommandRestart)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if r.State != session.StateCollectingName {
		t.Fatalf("state = %q, want fresh %q", r.State, session.StateCollectingName)
	}
	if _, ok := repo.drafts[450]; ok {
		t.Fatal("restart must discard the draft")
	}
}

func TestFinalizeRetriesCodeCollision(t *testing.T) {
	repo := newStubRepo()
	repo.codeCollisions = 2
	s := newTestService(repo, Options{})

	drive(t, s, 500, birthdayInputs)
	final, err := s.HandleEvent(context.Background(), 500, ratelimit.ClassGeneral, CommandConfirm)
	if err != nil {
		t.Fatalf("confirm with collisions: %v", err)
	}
	if final.Code == "" {
		t.Fatal("want code after retried collisions")
	}
}

func TestHandleEventRateLimited(t *testing.T) {
	repo := newStubRepo()
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), map[ratelimit.Class]ratelimit.Rule{
		ratelimit.ClassGeneral: {Limit: 2, Window: time.Minute},
	})
	s := NewService(repo, limiter, pricing.NewCalculator(pricing.DefaultRates()), nil, nil, Options{})

	for i := 0; i < 2; i++ {
		if _, err := s.HandleEvent(context.Background(), 600, ratelimit.ClassGeneral, ""); err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}
	_, err := s.HandleEvent(context.Background(), 600, ratelimit.ClassGeneral, "")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestSearchRequiresAdmin(t *testing.T) {
	repo := newStubRepo()
	s := newTestService(repo, Options{OwnerActorID: 1})

	if _, err := s.SearchReservations(context.Background(), 700, "ABC234"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if _, err := s.SearchReservations(context.Background(), 1, "ABC234"); err != nil {
		t.Fatalf("owner search: %v", err)
	}

	repo.admins[700] = true
	if _, err := s.SearchReservations(context.Background(), 700, "ABC234"); err != nil {
		t.Fatalf("admin search: %v", err)
	}
}

func TestReservationByCodeAccess(t *testing.T) {
	repo := newStubRepo()
	repo.reservations["ABC234"] = &model.Reservation{ActorID: 800, Code: "ABC234"}
	s := newTestService(repo, Options{})

	if _, err := s.ReservationByCode(context.Background(), 800, "ABC234"); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := s.ReservationByCode(context.Background(), 801, "ABC234"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}

	repo.admins[801] = true
	if _, err := s.ReservationByCode(context.Background(), 801, "ABC234"); err != nil {
		t.Fatalf("admin lookup: %v", err)
	}
}

func TestUpdateStatusAndPayment(t *testing.T) {
	repo := newStubRepo()
	repo.reservations["ABC234"] = &model.Reservation{ActorID: 900, Code: "ABC234",
		BookingStatus: model.BookingPending, PaymentStatus: model.PaymentPending}
	s := newTestService(repo, Options{OwnerActorID: 1})

	if err := s.UpdateReservationStatus(context.Background(), 1, "ABC234", model.BookingConfirmed, ""); err != nil {
		t.Fatalf("UpdateReservationStatus: %v", err)
	}
	if repo.reservations["ABC234"].BookingStatus != model.BookingConfirmed {
		t.Fatalf("booking status = %q", repo.reservations["ABC234"].BookingStatus)
	}

	if err := s.UpdatePaymentInfo(context.Background(), 1, "ABC234", model.PaymentPartial, "card", "tx-1"); err != nil {
		t.Fatalf("UpdatePaymentInfo: %v", err)
	}
	got := repo.reservations["ABC234"]
	if got.PaymentStatus != model.PaymentPartial || got.PaymentMethod != "card" || got.TransactionID != "tx-1" {
		t.Fatalf("payment info = %+v", got)
	}

	if err := s.UpdateReservationStatus(context.Background(), 2, "ABC234", model.BookingCanceled, ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestAddAdmin(t *testing.T) {
	repo := newStubRepo()
	s := newTestService(repo, Options{OwnerActorID: 1})

	if err := s.AddAdmin(context.Background(), 1, model.Admin{ActorID: 55}); err != nil {
		t.Fatalf("AddAdmin: %v", err)
	}
	if !repo.admins[55] {
		t.Fatal("admin not recorded")
	}
	if err := s.AddAdmin(context.Background(), 1, model.Admin{ActorID: 55}); !errors.Is(err, repository.ErrAdminExists) {
		t.Fatalf("err = %v, want ErrAdminExists", err)
	}
	if err := s.AddAdmin(context.Background(), 77, model.Admin{ActorID: 88}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestStatsRequiresAdmin(t *testing.T) {
	repo := newStubRepo()
	s := newTestService(repo, Options{OwnerActorID: 1})

	if _, err := s.Stats(context.Background(), 5); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	stats, err := s.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats == nil {
		t.Fatal("nil stats")
	}
}
