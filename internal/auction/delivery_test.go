package auction

import (
	"context"
	"errors"
	"testing"
	"time"

	"customs_auction/internal/apperr"
	"customs_auction/internal/model"
)

func closedWithWinner(t *testing.T, s *Service, clock *fakeClock) Winner {
	t.Helper()
	a := mustCreate(t, s, defaultInput())
	mustBid(t, s, a.ID, "u1", 105000)
	clock.Set(a.EndDate.Add(time.Second))
	report, err := s.CloseFinished(context.Background())
	if err != nil {
		t.Fatalf("CloseFinished() error = %v", err)
	}
	if len(report.Winners) != 1 {
		t.Fatalf("winners = %+v", report.Winners)
	}
	return report.Winners[0]
}

func TestDelivery_Flow(t *testing.T) {
	s, _, clock := newMemService(t)
	w := closedWithWinner(t, s, clock)
	ctx := context.Background()

	if _, err := s.ValidateDeliveryQR(ctx, w.QRCode); apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("validate pending delivery error = %v, want InvalidInput", err)
	}
	d, err := s.AdvanceDelivery(ctx, w.DeliveryID, model.DeliveryReady)
	if err != nil {
		t.Fatalf("AdvanceDelivery(ready) error = %v", err)
	}
	if d.Status != model.DeliveryReady || d.WinnerID != "u1" || d.Amount != 105000 {
		t.Errorf("delivery = %+v", d)
	}

	d, err = s.ValidateDeliveryQR(ctx, "  "+w.QRCode+" ")
	if err != nil {
		t.Fatalf("ValidateDeliveryQR() error = %v", err)
	}
	if d.Status != model.DeliveryDelivered || d.DeliveredAt == nil {
		t.Errorf("delivery = %s delivered_at %v", d.Status, d.DeliveredAt)
	}
	if _, err := s.ValidateDeliveryQR(ctx, w.QRCode); apperr.KindOf(err) != apperr.Conflict {
		t.Errorf("second validate error = %v, want Conflict", err)
	}
}

func TestDelivery_Errors(t *testing.T) {
	s, _, clock := newMemService(t)
	w := closedWithWinner(t, s, clock)
	ctx := context.Background()

	if _, err := s.ValidateDeliveryQR(ctx, ""); apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("empty qr error = %v", err)
	}
	if _, err := s.ValidateDeliveryQR(ctx, "not-a-code"); !errors.Is(err, ErrDeliveryNotFound) {
		t.Errorf("unknown qr error = %v, want ErrDeliveryNotFound", err)
	}
	if _, err := s.AdvanceDelivery(ctx, 999, model.DeliveryReady); !errors.Is(err, ErrDeliveryNotFound) {
		t.Errorf("unknown id error = %v, want ErrDeliveryNotFound", err)
	}
	if _, err := s.AdvanceDelivery(ctx, w.DeliveryID, model.DeliveryDelivered); apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("pending -> delivered error = %v, want InvalidInput", err)
	}
}

func TestDelivery_CancelledCannotBeValidated(t *testing.T) {
	s, _, clock := newMemService(t)
	w := closedWithWinner(t, s, clock)
	ctx := context.Background()

	if _, err := s.AdvanceDelivery(ctx, w.DeliveryID, model.DeliveryCancelled); err != nil {
		t.Fatalf("AdvanceDelivery(cancelled) error = %v", err)
	}
	if _, err := s.ValidateDeliveryQR(ctx, w.QRCode); apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("validate cancelled error = %v, want InvalidInput", err)
	}
	if _, err := s.AdvanceDelivery(ctx, w.DeliveryID, model.DeliveryReady); apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("reopen cancelled error = %v, want InvalidInput", err)
	}
}
