// Package service реализует бизнес-логику сервиса бронирования студии.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/sivanpabraj/studio-m/internal/bookingcode"
	"github.com/sivanpabraj/studio-m/internal/model"
	"github.com/sivanpabraj/studio-m/internal/notifier"
	"github.com/sivanpabraj/studio-m/internal/pricing"
	"github.com/sivanpabraj/studio-m/internal/ratelimit"
	"github.com/sivanpabraj/studio-m/internal/repository"
	"github.com/sivanpabraj/studio-m/internal/session"
)

// ErrRateLimited возвращается, когда актор исчерпал лимит запросов.
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrPermissionDenied возвращается при попытке выполнить административную
// операцию без прав или прочитать чужую бронь.
var ErrPermissionDenied = errors.New("permission denied")

// codeAttempts — максимум попыток вставить бронь с новым кодом при коллизии.
const codeAttempts = 5

// Команды диалога, распознаваемые в любом состоянии.
const (
	CommandCancel  = "cancel"
	CommandConfirm = "confirm"
	CommandRestart = "restart"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CustomerByActor(ctx context.Context, actorID int64) (*model.Customer, error)
	CreateReservation(ctx context.Context, cust model.Customer, res *model.Reservation) (int64, error)
	ReservationByCode(ctx context.Context, code string) (*model.Reservation, error)
	ReservationsByActor(ctx context.Context, actorID int64, limit int) ([]model.Reservation, error)
	SearchReservations(ctx context.Context, query string) ([]model.Reservation, error)
	UpdateReservationStatus(ctx context.Context, code string, booking model.BookingStatus, payment model.PaymentStatus) error
	UpdatePaymentInfo(ctx context.Context, code string, status model.PaymentStatus, method, transactionID string) error
	SaveDraft(ctx context.Context, actorID int64, fields []byte, state string) error
	LoadDraft(ctx context.Context, actorID int64) (*model.Draft, error)
	DeleteDraft(ctx context.Context, actorID int64) error
	DeleteExpiredDrafts(ctx context.Context, maxAge time.Duration) (int64, error)
	IsAdmin(ctx context.Context, actorID int64) (bool, error)
	AddAdmin(ctx context.Context, a model.Admin) error
	LogAction(ctx context.Context, actorID int64, action, details string) error
	Stats(ctx context.Context) (*model.Stats, error)
}

// Options настраивают поведение сервиса.
type Options struct {
	// OwnerActorID — актор с правами администратора без записи в таблице.
	OwnerActorID int64
	// StrictDates включает строгую проверку календарных дат.
	StrictDates bool
	// DraftTTL — срок жизни черновиков. Нулевое значение даёт сутки.
	DraftTTL time.Duration
}

// Service содержит бизнес-логику бронирования.
type Service struct {
	repo     Repository
	sessions *session.Manager
	drafts   *session.DraftManager
	limiter  *ratelimit.Limiter
	calc     *pricing.Calculator
	notify   *notifier.Client
	logger   *zap.Logger
	opts     Options
}

// NewService создаёт сервис. notify может быть nil, тогда уведомления
// не отправляются.
func NewService(repo Repository, limiter *ratelimit.Limiter, calc *pricing.Calculator, notify *notifier.Client, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		sessions: session.NewManager(),
		drafts:   session.NewDraftManager(repo, opts.DraftTTL),
		limiter:  limiter,
		calc:     calc,
		notify:   notify,
		logger:   logger,
		opts:     opts,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) allow(ctx context.Context, actorID int64, class ratelimit.Class) error {
	ok, err := s.limiter.Allow(ctx, actorID, class)
	if err != nil {
		s.logger.Warn("rate limit store unavailable, admitting request",
			zap.Int64("actor_id", actorID), zap.Error(err))
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// EventResult описывает исход обработки одного события диалога.
type EventResult struct {
	// State — состояние диалога после события; пустое после отмены.
	State session.State `json:"state"`
	// Resumed выставляется, когда диалог восстановлен из черновика.
	Resumed bool `json:"resumed,omitempty"`
	// Canceled выставляется после команды отмены.
	Canceled bool `json:"canceled,omitempty"`
	// Summary заполняется при переходе к подтверждению.
	Summary []session.SummaryItem `json:"summary,omitempty"`
	// Breakdown и Code заполняются после успешного оформления брони.
	Breakdown *pricing.Breakdown `json:"breakdown,omitempty"`
	Code      string             `json:"code,omitempty"`
}

// HandleEvent обрабатывает одно событие диалога от актора. События одного
// актора обрабатываются строго последовательно.
//
// Если диалог не начат, событие открывает его: восстанавливает черновик,
// а при его отсутствии стартует с нужного состояния; полезная нагрузка
// события при этом не расходуется. Команда отмены завершает диалог,
// сохраняя черновик для возобновления; команда перезапуска удаляет
// черновик и начинает диалог заново.
func (s *Service) HandleEvent(ctx context.Context, actorID int64, class ratelimit.Class, input string) (*EventResult, error) {
	if err := s.allow(ctx, actorID, class); err != nil {
		return nil, err
	}

	var (
		result *EventResult
		drop   bool
	)
	err := s.sessions.Do(actorID, func(sess *session.Session) error {
		if input == CommandRestart {
			if err := s.drafts.Discard(ctx, actorID); err != nil {
				return err
			}
			*sess = session.Session{ActorID: actorID}
			r, err := s.openSession(ctx, sess)
			result = r
			return err
		}

		if !sess.Active() {
			r, err := s.openSession(ctx, sess)
			result = r
			return err
		}

		if input == CommandCancel {
			if err := s.drafts.Save(ctx, actorID, &sess.Fields, sess.State); err != nil {
				s.logger.Warn("save draft on cancel", zap.Int64("actor_id", actorID), zap.Error(err))
			}
			drop = true
			result = &EventResult{Canceled: true}
			return nil
		}

		if sess.State == session.StateReviewingSummary {
			if input != CommandConfirm {
				return &session.ValidationError{
					Field:  "confirmation",
					Reason: "reply 'confirm' to book or 'cancel' to stop",
				}
			}
			r, err := s.finalize(ctx, sess)
			if err != nil {
				return err
			}
			drop = true
			result = r
			return nil
		}

		next, verr := session.Advance(sess.State, &sess.Fields, input, session.Options{StrictDates: s.opts.StrictDates})
		if verr != nil {
			return verr
		}
		sess.State = next
		if err := s.drafts.Save(ctx, actorID, &sess.Fields, sess.State); err != nil {
			s.logger.Warn("save draft", zap.Int64("actor_id", actorID), zap.Error(err))
		}
		result = &EventResult{State: next}
		if next == session.StateReviewingSummary {
			result.Summary = sess.Fields.Summary()
		}
		return nil
	})
	if drop {
		s.sessions.Drop(actorID)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// openSession начинает новый диалог или восстанавливает его из черновика.
func (s *Service) openSession(ctx context.Context, sess *session.Session) (*EventResult, error) {
	fields, state, err := s.drafts.Load(ctx, sess.ActorID)
	if err != nil {
		return nil, err
	}
	if fields != nil {
		sess.Fields = *fields
		sess.State = state
		r := &EventResult{State: state, Resumed: true}
		if state == session.StateReviewingSummary {
			r.Summary = sess.Fields.Summary()
		}
		return r, nil
	}

	cust, err := s.repo.CustomerByActor(ctx, sess.ActorID)
	if err != nil && !errors.Is(err, repository.ErrCustomerNotFound) {
		return nil, err
	}
	if cust != nil {
		sess.Fields.FirstName = cust.DisplayName
		sess.Fields.Phone = cust.Phone
		sess.Fields.Email = cust.Email
		sess.State = session.StartState(true)
	} else {
		sess.State = session.StartState(false)
	}
	return &EventResult{State: sess.State}, nil
}

// finalize считает стоимость, выпускает уникальный код и записывает бронь
// одной транзакцией. Коллизия кода даёт новую попытку с новым кодом.
func (s *Service) finalize(ctx context.Context, sess *session.Session) (*EventResult, error) {
	breakdown := s.calc.Compute(sess.Fields.Spec.ServiceType, sess.Fields.Spec)

	cust := model.Customer{
		ActorID:     sess.ActorID,
		DisplayName: sess.Fields.DisplayName(),
		Phone:       sess.Fields.Phone,
		Email:       sess.Fields.Email,
	}

	var res model.Reservation
	backoff := retry.WithMaxRetries(codeAttempts-1, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		code, err := bookingcode.Generate()
		if err != nil {
			return err
		}
		res = model.Reservation{
			ActorID:       sess.ActorID,
			Code:          code,
			ServiceType:   sess.Fields.Spec.ServiceType,
			Spec:          sess.Fields.Spec,
			EventDate:     sess.Fields.Spec.EventDate,
			EventTime:     sess.Fields.Spec.EventTime,
			Location:      sess.Fields.Spec.Location,
			TotalCost:     breakdown.Total,
			DepositAmount: breakdown.Deposit,
			PaymentStatus: model.PaymentPending,
			BookingStatus: model.BookingPending,
		}
		if _, err := s.repo.CreateReservation(ctx, cust, &res); err != nil {
			if errors.Is(err, repository.ErrCodeExists) {
				s.logger.Info("booking code collision, retrying", zap.String("code", code))
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.drafts.Discard(ctx, sess.ActorID); err != nil {
		s.logger.Warn("discard draft", zap.Int64("actor_id", sess.ActorID), zap.Error(err))
	}
	if err := s.repo.LogAction(ctx, sess.ActorID, "reservation_created", res.Code); err != nil {
		s.logger.Warn("audit log", zap.Error(err))
	}
	if s.notify != nil {
		go func(cust model.Customer, res model.Reservation) {
			nctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.notify.NotifyReservation(nctx, cust, res); err != nil {
				s.logger.Warn("notify reservation", zap.String("code", res.Code), zap.Error(err))
			}
		}(cust, res)
	}

	s.logger.Info("reservation created",
		zap.String("code", res.Code),
		zap.Int64("actor_id", sess.ActorID),
		zap.String("service_type", string(res.ServiceType)),
		zap.Int64("total", res.TotalCost),
	)
	return &EventResult{State: session.StatePriced, Code: res.Code, Breakdown: &breakdown}, nil
}

// MyReservations возвращает последние брони актора.
func (s *Service) MyReservations(ctx context.Context, actorID int64) ([]model.Reservation, error) {
	if err := s.allow(ctx, actorID, ratelimit.ClassGeneral); err != nil {
		return nil, err
	}
	return s.repo.ReservationsByActor(ctx, actorID, 20)
}

// ReservationByCode возвращает бронь по коду. Чужая бронь доступна
// только администратору.
func (s *Service) ReservationByCode(ctx context.Context, actorID int64, code string) (*model.Reservation, error) {
	if err := s.allow(ctx, actorID, ratelimit.ClassSearch); err != nil {
		return nil, err
	}
	res, err := s.repo.ReservationByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if res.ActorID != actorID {
		admin, err := s.isAdmin(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, ErrPermissionDenied
		}
	}
	return res, nil
}

// SearchReservations ищет брони по коду, имени или телефону. Только для
// администраторов.
func (s *Service) SearchReservations(ctx context.Context, actorID int64, query string) ([]model.Reservation, error) {
	if err := s.allow(ctx, actorID, ratelimit.ClassSearch); err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.SearchReservations(ctx, query)
}

// UpdateReservationStatus меняет статусы брони. Только для администраторов.
func (s *Service) UpdateReservationStatus(ctx context.Context, actorID int64, code string, booking model.BookingStatus, payment model.PaymentStatus) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.UpdateReservationStatus(ctx, code, booking, payment); err != nil {
		return err
	}
	if err := s.repo.LogAction(ctx, actorID, "status_updated", code); err != nil {
		s.logger.Warn("audit log", zap.Error(err))
	}
	return nil
}

// UpdatePaymentInfo фиксирует сведения об оплате брони. Только для
// администраторов.
func (s *Service) UpdatePaymentInfo(ctx context.Context, actorID int64, code string, status model.PaymentStatus, method, transactionID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.UpdatePaymentInfo(ctx, code, status, method, transactionID); err != nil {
		return err
	}
	if err := s.repo.LogAction(ctx, actorID, "payment_updated", code); err != nil {
		s.logger.Warn("audit log", zap.Error(err))
	}
	return nil
}

// AddAdmin выдаёт права администратора. Только для администраторов.
func (s *Service) AddAdmin(ctx context.Context, byActorID int64, a model.Admin) error {
	if err := s.requireAdmin(ctx, byActorID); err != nil {
		return err
	}
	a.AddedBy = byActorID
	if err := s.repo.AddAdmin(ctx, a); err != nil {
		return err
	}
	if err := s.repo.LogAction(ctx, byActorID, "admin_added", ""); err != nil {
		s.logger.Warn("audit log", zap.Error(err))
	}
	return nil
}

// Stats возвращает сводную статистику студии. Только для администраторов.
func (s *Service) Stats(ctx context.Context, actorID int64) (*model.Stats, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.Stats(ctx)
}

func (s *Service) isAdmin(ctx context.Context, actorID int64) (bool, error) {
	if s.opts.OwnerActorID != 0 && actorID == s.opts.OwnerActorID {
		return true, nil
	}
	return s.repo.IsAdmin(ctx, actorID)
}

func (s *Service) requireAdmin(ctx context.Context, actorID int64) error {
	admin, err := s.isAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !admin {
		return ErrPermissionDenied
	}
	return nil
}

// StartDraftCleanup запускает фоновую уборку просроченных черновиков и
// простаивающих сессий.
func (s *Service) StartDraftCleanup(ctx context.Context, interval time.Duration) {
	ttl := s.opts.DraftTTL
	if ttl <= 0 {
		ttl = session.DraftTTL
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.repo.DeleteExpiredDrafts(ctx, ttl)
				if err != nil {
					s.logger.Warn("delete expired drafts", zap.Error(err))
					continue
				}
				dropped := s.sessions.DropIdle(ttl)
				if deleted > 0 || dropped > 0 {
					s.logger.Info("cleanup pass",
						zap.Int64("drafts_deleted", deleted),
						zap.Int("sessions_dropped", dropped),
					)
				}
			}
		}
	}()
}
