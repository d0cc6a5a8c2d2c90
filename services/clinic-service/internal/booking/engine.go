package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxNotesLength = 2000

// Store is what the engine needs from persistence.
type Store interface {
	GetSlot(ctx context.Context, slotID string) (model.SlotDetail, error)
	TryClaim(ctx context.Context, slotID string) (bool, error)
	ReleaseClaim(ctx context.Context, slotID string) error
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	CreateUser(ctx context.Context, u *model.User) error
}

// Publisher fans slot changes out to realtime subscribers. Implementations must
// not block.
type Publisher interface {
	PublishSlotUpdate(ctx context.Context, clinicID string, evt model.SlotEvent)
}

type Request struct {
	ClinicID   string
	TimeSlotID string
	UserID     string // empty books as a fresh guest
	Notes      string
}

type Config struct {
	// InsertAttempts bounds retries of the booking insert after a won claim.
	InsertAttempts uint
	// ReleaseAttempts bounds retries of the compensating release.
	ReleaseAttempts uint
	RetryInterval   time.Duration
	GuestDomain     string
}

func (c Config) withDefaults() Config {
	if c.InsertAttempts == 0 {
		c.InsertAttempts = 3
	}
	if c.ReleaseAttempts == 0 {
		c.ReleaseAttempts = 5
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 50 * time.Millisecond
	}
	if c.GuestDomain == "" {
		c.GuestDomain = "guest.clinicnear.local"
	}
	return c
}

// Engine turns a slot id into a confirmed booking. At most one concurrent
// caller can win a given slot; the winner is decided by Store.TryClaim.
type Engine struct {
	store   Store
	bus     Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
	newID   func() string
}

func NewEngine(store Store, bus Publisher, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		bus:     bus,
		logger:  logger,
		metrics: m,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Reserve books req.TimeSlotID at req.ClinicID. Errors wrap model.ErrValidation,
// ErrNotFound, ErrMismatch or ErrConflict for the caller-facing failures.
func (e *Engine) Reserve(ctx context.Context, req Request) (booking model.Booking, err error) {
	ctx, span := otel.Tracer("clinic-service/booking").Start(ctx, "booking.Reserve")
	span.SetAttributes(
		attribute.String("clinic.id", req.ClinicID),
		attribute.String("time_slot.id", req.TimeSlotID),
	)
	start := e.now()
	defer func() {
		e.metrics.ObserveReservation(outcome(err), e.now().Sub(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome(err))
		}
		span.End()
	}()

	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.TimeSlotID = strings.TrimSpace(req.TimeSlotID)
	if req.ClinicID == "" || req.TimeSlotID == "" {
		return model.Booking{}, fmt.Errorf("%w: clinicId and timeSlotId are required", model.ErrValidation)
	}
	if len(req.Notes) > maxNotesLength {
		return model.Booking{}, fmt.Errorf("%w: notes exceed %d characters", model.ErrValidation, maxNotesLength)
	}

	detail, err := e.store.GetSlot(ctx, req.TimeSlotID)
	if err != nil {
		return model.Booking{}, err
	}
	if detail.Slot.ClinicID != req.ClinicID {
		return model.Booking{}, fmt.Errorf("slot %s: %w", req.TimeSlotID, model.ErrMismatch)
	}
	if !detail.Slot.IsAvailable {
		return model.Booking{}, fmt.Errorf("slot %s: %w", req.TimeSlotID, model.ErrConflict)
	}

	userID := req.UserID
	if userID == "" {
		guest := model.User{
			ID:      e.newID(),
			Role:    model.RolePatient,
			IsGuest: true,
		}
		guest.Email = "guest_" + guest.ID + "@" + e.cfg.GuestDomain
		if err := e.store.CreateUser(ctx, &guest); err != nil {
			return model.Booking{}, fmt.Errorf("create guest: %w", err)
		}
		userID = guest.ID
	}

	won, err := e.store.TryClaim(ctx, req.TimeSlotID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("claim slot: %w", err)
	}
	if !won {
		return model.Booking{}, fmt.Errorf("slot %s: %w", req.TimeSlotID, model.ErrConflict)
	}

	booking = model.Booking{
		ID:         e.newID(),
		UserID:     userID,
		ClinicID:   req.ClinicID,
		TimeSlotID: req.TimeSlotID,
		Status:     model.BookingConfirmed,
		Notes:      req.Notes,
	}
	if err := e.insert(ctx, &booking); err != nil {
		e.release(ctx, req.TimeSlotID)
		return model.Booking{}, fmt.Errorf("create booking: %w", err)
	}

	if e.bus != nil {
		e.bus.PublishSlotUpdate(ctx, req.ClinicID, model.SlotEvent{
			TimeSlotID:  req.TimeSlotID,
			IsAvailable: false,
			BookingID:   booking.ID,
		})
	}
	e.logger.Info("booking confirmed",
		"booking_id", booking.ID,
		"clinic_id", booking.ClinicID,
		"time_slot_id", booking.TimeSlotID,
		"guest", req.UserID == "",
	)
	return booking, nil
}

// insert creates b, retrying transient failures. A failed attempt may still
// have committed, so once one has failed the final answer comes from reading
// the booking back by id.
func (e *Engine) insert(ctx context.Context, b *model.Booking) error {
	uncertain := false
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := e.store.CreateBooking(ctx, b)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrConflict) {
			return struct{}{}, backoff.Permanent(err)
		}
		uncertain = true
		return struct{}{}, err
	}, e.retryOptions(e.cfg.InsertAttempts)...)
	if err == nil || !uncertain {
		return err
	}

	stored, gerr := e.store.GetBooking(context.WithoutCancel(ctx), b.ID)
	if gerr != nil {
		if !errors.Is(gerr, model.ErrNotFound) {
			e.logger.Error("booking state unknown after insert failure", "booking_id", b.ID, "err", gerr)
		}
		return err
	}
	e.logger.Warn("booking insert committed despite error", "booking_id", b.ID, "err", err)
	*b = stored
	return nil
}

// release returns a won claim after the booking insert failed. It runs even if
// the request context was cancelled.
func (e *Engine) release(ctx context.Context, slotID string) {
	ctx = context.WithoutCancel(ctx)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, e.store.ReleaseClaim(ctx, slotID)
	}, e.retryOptions(e.cfg.ReleaseAttempts)...)
	if err != nil {
		e.logger.Error("release claim failed; slot stays unavailable", "time_slot_id", slotID, "err", err)
		return
	}
	e.logger.Warn("claim released after booking insert failure", "time_slot_id", slotID)
}

func (e *Engine) retryOptions(attempts uint) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryInterval
	b.MaxInterval = 20 * e.cfg.RetryInterval
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.logger.Warn("retrying store call", "err", err, "backoff_ms", next.Milliseconds())
		}),
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrMismatch):
		return "mismatch"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
