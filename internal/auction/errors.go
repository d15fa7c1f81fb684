package auction

import (
	"errors"
	"fmt"

	"customs_auction/internal/apperr"
	"customs_auction/internal/model"
)

var (
	ErrAuctionNotFound  = apperr.E(apperr.NotFound, "auction not found")
	ErrDeliveryNotFound = apperr.E(apperr.NotFound, "delivery not found")
	ErrInvalidAmount    = apperr.E(apperr.InvalidInput, "bid amount is below the minimum")
	ErrAuctionNotActive = apperr.E(apperr.InvalidInput, "auction is not accepting bids")
	ErrAlreadyLeading   = apperr.E(apperr.InvalidInput, "you are already the highest bidder")

	// ErrConflict 表示提交时发现并发修改；Service 内部重试，不会返回给调用方。
	ErrConflict = errors.New("auction: concurrent update conflict")
)

// RejectionError 出价被拒时携带最新价格，客户端无需再查一次。
type RejectionError struct {
	Reason       error
	CurrentPrice int64
	MinNextBid   int64
	msg          string
}

func (e *RejectionError) Error() string { return e.msg }

func (e *RejectionError) Unwrap() error { return e.Reason }

func rejectAmount(a *model.Auction) *RejectionError {
	return &RejectionError{
		Reason:       ErrInvalidAmount,
		CurrentPrice: a.CurrentPrice,
		MinNextBid:   a.MinNextBid(),
		msg:          fmt.Sprintf("bid must be at least %d (current price %d)", a.MinNextBid(), a.CurrentPrice),
	}
}

func rejectNotActive(a *model.Auction, msg string) *RejectionError {
	return &RejectionError{
		Reason:       ErrAuctionNotActive,
		CurrentPrice: a.CurrentPrice,
		MinNextBid:   a.MinNextBid(),
		msg:          msg,
	}
}

func rejectLeading(a *model.Auction) *RejectionError {
	return &RejectionError{
		Reason:       ErrAlreadyLeading,
		CurrentPrice: a.CurrentPrice,
		MinNextBid:   a.MinNextBid(),
		msg:          ErrAlreadyLeading.Error(),
	}
}
