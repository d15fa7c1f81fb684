package auction

import (
	"context"
	"fmt"
	"strings"

	"customs_auction/internal/apperr"
	"customs_auction/internal/model"

	"go.uber.org/zap"
)

// ValidateDeliveryQR 取货核销：ready / in_transit 的交付凭二维码置为 delivered。
func (s *Service) ValidateDeliveryQR(ctx context.Context, qr string) (*model.Delivery, error) {
	qr = strings.TrimSpace(qr)
	if qr == "" {
		return nil, apperr.E(apperr.InvalidInput, "qr_code is required")
	}
	d, err := s.store.UpdateDelivery(ctx, DeliveryKey{QRCode: qr}, func(d *model.Delivery) error {
		switch d.Status {
		case model.DeliveryDelivered:
			return apperr.E(apperr.Conflict, "delivery already completed")
		case model.DeliveryCancelled:
			return apperr.E(apperr.InvalidInput, "delivery was cancelled")
		case model.DeliveryPending:
			return apperr.E(apperr.InvalidInput, "delivery is not ready for pickup")
		}
		now := s.clock()
		d.Status = model.DeliveryDelivered
		d.DeliveredAt = &now
		d.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("delivery validated", zap.Uint("delivery_id", d.ID), zap.Uint("auction_id", d.AuctionID))
	return d, nil
}

// AdvanceDelivery 推进交付状态，只允许 pending → ready → in_transit → delivered 及取消。
func (s *Service) AdvanceDelivery(ctx context.Context, id uint, to model.DeliveryStatus) (*model.Delivery, error) {
	d, err := s.store.UpdateDelivery(ctx, DeliveryKey{ID: id}, func(d *model.Delivery) error {
		if !d.Status.CanTransition(to) {
			return apperr.E(apperr.InvalidInput, fmt.Sprintf("cannot move delivery from %s to %s", d.Status, to))
		}
		now := s.clock()
		d.Status = to
		d.UpdatedAt = now
		if to == model.DeliveryDelivered {
			d.DeliveredAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("delivery status changed", zap.Uint("delivery_id", id), zap.String("status", string(to)))
	return d, nil
}
