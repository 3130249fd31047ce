package orders

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/logging"
)

type stockMove struct {
	productID primitive.ObjectID
	delta     int
}

// moveLog records applied stock moves so they can be reversed. A nil log
// records nothing.
type moveLog struct {
	moves []stockMove
}

func (l *moveLog) add(productID primitive.ObjectID, delta int) {
	if l == nil {
		return
	}
	l.moves = append(l.moves, stockMove{productID: productID, delta: delta})
}

// moveStock applies delta to a product's stock. It reports false without an
// error when the product no longer exists.
func (s *Service) moveStock(ctx context.Context, orderID, productID primitive.ObjectID, delta int, moves *moveLog) (bool, error) {
	rec, err := s.ledger.FindProduct(ctx, productID)
	if errors.Is(err, ErrProductNotFound) {
		s.reportDrift(orderID, productID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find product %s: %w", productID.Hex(), err)
	}

	next := rec.Stock + delta
	if delta < 0 && next < 0 && !s.policy.AllowNegativeStock {
		return false, InsufficientStockError{ProductID: productID, Available: rec.Stock, Requested: -delta}
	}

	if err := s.ledger.SetStock(ctx, productID, next); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			s.reportDrift(orderID, productID)
			return false, nil
		}
		return false, fmt.Errorf("set stock %s: %w", productID.Hex(), err)
	}
	moves.add(productID, delta)
	return true, nil
}

// inScope runs fn under the configured consistency level. Only the compensate
// level hands fn a log to record into.
func (s *Service) inScope(ctx context.Context, op string, fn func(ctx context.Context, moves *moveLog) error) error {
	switch s.policy.Consistency {
	case ConsistencyTransaction:
		return s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			return fn(txCtx, nil)
		})
	case ConsistencyCompensate:
		moves := &moveLog{}
		err := fn(ctx, moves)
		if err != nil && len(moves.moves) > 0 {
			s.compensate(ctx, op, moves)
		}
		return err
	default:
		return fn(ctx, nil)
	}
}

// compensate reverses moves newest first, re-reading stock each time so
// concurrent changes are kept.
func (s *Service) compensate(ctx context.Context, op string, moves *moveLog) {
	ctx = context.WithoutCancel(ctx)
	for i := len(moves.moves) - 1; i >= 0; i-- {
		m := moves.moves[i]
		rec, err := s.ledger.FindProduct(ctx, m.productID)
		if err == nil {
			err = s.ledger.SetStock(ctx, m.productID, rec.Stock-m.delta)
		}
		if err != nil {
			logging.Warn(logging.Fields{
				Event:     "stock.compensation_failed",
				ProductID: m.productID.Hex(),
				Status:    op,
				Message:   err.Error(),
			})
		}
	}
}
