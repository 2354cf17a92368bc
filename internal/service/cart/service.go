package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storecart/internal/domain"
	"storecart/internal/event"
	"storecart/internal/logger"
	"storecart/internal/metrics"
	cartrepo "storecart/internal/repository/cart"
	"storecart/internal/tracing"
)

type offeringLookup interface {
	Sellable(ctx context.Context, storeID, id string) (*domain.Offering, error)
}

type Config struct {
	// SessionTTL is the sliding expiry of anonymous carts.
	SessionTTL time.Duration
	Events     event.Publisher
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

type Service struct {
	repo       cartrepo.Repository
	offerings  offeringLookup
	events     event.Publisher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
	validate   *validator.Validate
	sessionTTL time.Duration
	now        func() time.Time
}

func New(repo cartrepo.Repository, offerings offeringLookup, cfg Config) *Service {
	events := cfg.Events
	if events == nil {
		events = event.Noop{}
	}
	return &Service{
		repo:       repo,
		offerings:  offerings,
		events:     events,
		metrics:    cfg.Metrics,
		logger:     logger.OrNop(cfg.Logger).Named("cart_service"),
		tracer:     tracing.Tracer("storecart/cart"),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		sessionTTL: cfg.SessionTTL,
		now:        time.Now,
	}
}

type AddLineItemInput struct {
	OfferingID string `json:"productId" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gte=1,lte=10000"`
}

type ChangeQuantityInput struct {
	Quantity int `json:"quantity" validate:"gte=1,lte=10000"`
}

// GetActive returns the owner's active cart, or nil when the owner has none.
func (s *Service) GetActive(ctx context.Context, store domain.Store, owner domain.Owner) (*domain.Cart, error) {
	ctx, span := s.startSpan(ctx, "cart.GetActive", store, owner)
	defer span.End()

	if owner.IsZero() {
		return nil, nil
	}
	cart, err := s.repo.GetActive(ctx, s.scope(store, owner))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, recordErr(span, err)
	}
	return cart, nil
}

// Get returns a cart by id, provided owner owns it.
func (s *Service) Get(ctx context.Context, store domain.Store, owner domain.Owner, cartID string) (*domain.Cart, error) {
	ctx, span := s.startSpan(ctx, "cart.Get", store, owner)
	defer span.End()

	cart, err := s.repo.GetByID(ctx, store.ID, cartID)
	if err != nil {
		return nil, recordErr(span, err)
	}
	if cart.Owner != owner {
		return nil, domain.NotFound("cart", cartID)
	}
	return cart, nil
}

// Locate returns the owner's active cart, creating it when absent.
func (s *Service) Locate(ctx context.Context, store domain.Store, owner domain.Owner) (*domain.Cart, error) {
	ctx, span := s.startSpan(ctx, "cart.Locate", store, owner)
	defer span.End()

	if owner.IsZero() {
		return nil, domain.ErrNoActor
	}
	cart, res, err := s.repo.Locate(ctx, s.scope(store, owner))
	if err != nil {
		return nil, recordErr(span, err)
	}
	s.observe(ctx, cart, owner, res)
	return cart, nil
}

// AddLineItem merges quantity of an offering into the owner's active cart.
// Input is validated and the offering resolved before any write, so a
// rejected call never creates a cart.
func (s *Service) AddLineItem(ctx context.Context, store domain.Store, owner domain.Owner, in AddLineItemInput) (*domain.Cart, error) {
	ctx, span := s.startSpan(ctx, "cart.AddLineItem", store, owner)
	defer span.End()

	in.OfferingID = strings.TrimSpace(in.OfferingID)
	if err := s.validateInput(in); err != nil {
		return nil, recordErr(span, err)
	}
	if owner.IsZero() {
		return nil, recordErr(span, domain.ErrNoActor)
	}

	offering, err := s.offerings.Sellable(ctx, store.ID, in.OfferingID)
	if err != nil {
		return nil, recordErr(span, err)
	}

	cart, res, err := s.repo.AddLineItem(ctx, cartrepo.AddLineItemInput{
		Scope:      s.scope(store, owner),
		OfferingID: offering.ID,
		Quantity:   in.Quantity,
		UnitPrice:  offering.Price,
		Currency:   offering.Currency,
		Snapshot:   SnapshotFromOffering(*offering),
	})
	if err != nil {
		return nil, recordErr(span, err)
	}
	span.SetAttributes(attribute.Bool("cart.line_created", res.LineCreated))

	s.observe(ctx, cart, owner, res)
	if s.metrics != nil {
		result := "merged"
		if res.LineCreated {
			result = "created"
		}
		s.metrics.LineItemsAdded.WithLabelValues(result).Inc()
	}
	s.publish(ctx, event.New(event.LineItemAdded, cart.ID, store.ID, map[string]interface{}{
		"offeringId":  offering.ID,
		"quantity":    in.Quantity,
		"lineCreated": res.LineCreated,
	}))
	return cart, nil
}

func (s *Service) ChangeLineItemQuantity(ctx context.Context, store domain.Store, owner domain.Owner, lineItemID string, in ChangeQuantityInput) (*domain.Cart, error) {
	ctx, span := s.startSpan(ctx, "cart.ChangeLineItemQuantity", store, owner)
	defer span.End()

	if err := s.validateInput(in); err != nil {
		return nil, recordErr(span, err)
	}
	if owner.IsZero() {
		return nil, recordErr(span, domain.ErrNoActor)
	}
	cart, err := s.repo.ChangeLineItemQuantity(ctx, cartrepo.ChangeLineItemInput{
		Scope:      s.scope(store, owner),
		LineItemID: strings.TrimSpace(lineItemID),
		Quantity:   in.Quantity,
	})
	if err != nil {
		return nil, recordErr(span, err)
	}
	s.publish(ctx, event.New(event.LineItemQtyChanged, cart.ID, store.ID, map[string]interface{}{
		"lineItemId": lineItemID,
		"quantity":   in.Quantity,
	}))
	return cart, nil
}

func (s *Service) RemoveLineItem(ctx context.Context, store domain.Store, owner domain.Owner, lineItemID string) (*domain.Cart, error) {
	ctx, span := s.startSpan(ctx, "cart.RemoveLineItem", store, owner)
	defer span.End()

	if owner.IsZero() {
		return nil, recordErr(span, domain.ErrNoActor)
	}
	cart, err := s.repo.RemoveLineItem(ctx, s.scope(store, owner), strings.TrimSpace(lineItemID))
	if err != nil {
		return nil, recordErr(span, err)
	}
	s.publish(ctx, event.New(event.LineItemRemoved, cart.ID, store.ID, map[string]interface{}{
		"lineItemId": lineItemID,
	}))
	return cart, nil
}

// Delete abandons the owner's active cart.
func (s *Service) Delete(ctx context.Context, store domain.Store, owner domain.Owner) error {
	ctx, span := s.startSpan(ctx, "cart.Delete", store, owner)
	defer span.End()

	if owner.IsZero() {
		return recordErr(span, domain.ErrNoActor)
	}
	if err := s.repo.SoftDelete(ctx, s.scope(store, owner)); err != nil {
		return recordErr(span, err)
	}
	s.publish(ctx, event.New(event.CartDeleted, "", store.ID, map[string]interface{}{
		"owner": owner.Kind().String(),
	}))
	return nil
}

// Claim moves the session's cart to the authenticated customer.
func (s *Service) Claim(ctx context.Context, store domain.Store, customerID string, sessionToken uuid.UUID) (*domain.Cart, error) {
	owner := domain.CustomerOwner(customerID)
	ctx, span := s.startSpan(ctx, "cart.Claim", store, owner)
	defer span.End()

	if strings.TrimSpace(customerID) == "" {
		return nil, recordErr(span, fmt.Errorf("%w: claiming a cart requires an authenticated customer", domain.ErrUnauthorized))
	}
	if sessionToken == uuid.Nil {
		return nil, recordErr(span, domain.InvalidArgument("session token required to claim a cart"))
	}

	cart, res, err := s.repo.Claim(ctx, cartrepo.ClaimInput{
		StoreID:      store.ID,
		SessionToken: sessionToken,
		CustomerID:   customerID,
	})
	if err != nil {
		return nil, recordErr(span, err)
	}

	outcome := "reowned"
	if res.Merged {
		outcome = "merged"
	}
	if s.metrics != nil {
		s.metrics.CartsClaimed.WithLabelValues(outcome).Inc()
	}
	s.logger.Info("cart claimed",
		zap.String("cart_id", cart.ID),
		zap.String("source_cart_id", res.SourceID),
		zap.String("outcome", outcome),
		zap.Int64("merged_lines", res.MergedLines),
		zap.Int64("moved_lines", res.MovedLines),
	)
	s.publish(ctx, event.New(event.CartClaimed, cart.ID, store.ID, map[string]interface{}{
		"sourceCartId": res.SourceID,
		"outcome":      outcome,
	}))
	return cart, nil
}

// ExpireStale marks anonymous carts past their expiry as expired.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireStale(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.CartsExpired.Add(float64(n))
	}
	if n > 0 {
		s.publish(ctx, event.New(event.CartsExpired, "", "", map[string]interface{}{"count": n}))
	}
	return n, nil
}

func (s *Service) scope(store domain.Store, owner domain.Owner) cartrepo.Scope {
	return cartrepo.Scope{
		StoreID:    store.ID,
		Owner:      owner,
		Currency:   store.Currency,
		SessionTTL: s.sessionTTL,
	}
}

func (s *Service) observe(ctx context.Context, cart *domain.Cart, owner domain.Owner, res cartrepo.MergeResult) {
	if res.CreateRaced && s.metrics != nil {
		s.metrics.CartCreateConflicts.Inc()
	}
	if !res.CartCreated {
		return
	}
	if s.metrics != nil {
		s.metrics.CartsCreated.WithLabelValues(owner.Kind().String()).Inc()
	}
	s.publish(ctx, event.New(event.CartCreated, cart.ID, cart.StoreID, map[string]interface{}{
		"owner":    owner.Kind().String(),
		"currency": cart.Currency,
	}))
}

// publish is best effort: the cart change is already committed.
func (s *Service) publish(ctx context.Context, e event.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("cart event dropped", zap.String("event_type", string(e.Type)), zap.String("cart_id", e.AggregateID), zap.Error(err))
	}
}

func (s *Service) validateInput(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.InvalidArgument("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", fe.Field(), msgForTag(fe)))
	}
	return domain.InvalidArgument("%s", strings.Join(msgs, "; "))
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

func (s *Service) startSpan(ctx context.Context, name string, store domain.Store, owner domain.Owner) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("store.key", store.Key),
		attribute.String("cart.owner_kind", owner.Kind().String()),
	))
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// SnapshotFromOffering captures the display data of an offering at the
// moment a line is created.
func SnapshotFromOffering(o domain.Offering) map[string]interface{} {
	slug := strings.TrimSpace(o.Key)
	if slug == "" {
		slug = strings.ReplaceAll(strings.ToLower(o.Name), " ", "-")
	}
	snap := map[string]interface{}{
		"productKey":  o.Key,
		"productName": o.DisplayName(),
		"sku":         o.SKU,
		"productSlug": slug,
		"price":       o.Price.StringFixed(2),
		"currency":    o.Currency,
	}
	if images := o.Images(); len(images) > 0 {
		snap["images"] = images
	}
	return snap
}
