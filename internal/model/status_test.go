package model

import "testing"

func TestAuctionStatusCanTransition(t *testing.T) {
	tests := []struct {
		from AuctionStatus
		to   AuctionStatus
		want bool
	}{
		{AuctionScheduled, AuctionActive, true},
		{AuctionScheduled, AuctionCancelled, true},
		{AuctionScheduled, AuctionCompleted, false},
		{AuctionActive, AuctionPaused, true},
		{AuctionPaused, AuctionActive, true},
		{AuctionPaused, AuctionCompleted, false},
		{AuctionActive, AuctionCompleted, true},
		{AuctionActive, AuctionScheduled, false},
		{AuctionCompleted, AuctionActive, false},
		{AuctionCancelled, AuctionActive, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeliveryStatusCanTransition(t *testing.T) {
	tests := []struct {
		from DeliveryStatus
		to   DeliveryStatus
		want bool
	}{
		{DeliveryPending, DeliveryReady, true},
		{DeliveryPending, DeliveryDelivered, false},
		{DeliveryReady, DeliveryInTransit, true},
		{DeliveryInTransit, DeliveryDelivered, true},
		{DeliveryInTransit, DeliveryReady, false},
		{DeliveryDelivered, DeliveryCancelled, false},
		{DeliveryReady, DeliveryCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReserveMet(t *testing.T) {
	reserve := int64(150000)
	a := &Auction{CurrentPrice: 120000}
	if !a.ReserveMet() {
		t.Errorf("ReserveMet() without reserve = false, want true")
	}
	a.ReservePrice = &reserve
	if a.ReserveMet() {
		t.Errorf("ReserveMet() below reserve = true, want false")
	}
	a.CurrentPrice = 150000
	if !a.ReserveMet() {
		t.Errorf("ReserveMet() at reserve = false, want true")
	}
}
