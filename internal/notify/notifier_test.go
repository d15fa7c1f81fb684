package notify_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"customs_auction/internal/notify"
	"customs_auction/internal/notify/mock"

	"go.uber.org/mock/gomock"
)

func TestNotifier_NotifyOutbid(t *testing.T) {
	type fields struct {
		contact   notify.Contact
		lookupErr error
		sendErr   error
	}
	tests := []struct {
		name     string
		fields   fields
		wantSend bool
		wantText []string
		wantErr  error
	}{
		{
			name:     "Success",
			fields:   fields{contact: notify.Contact{UserID: "u1", FullName: "Ana Torres", Phone: "+52 55 1234 5678"}},
			wantSend: true,
			wantText: []string{"Hi Ana", "$1,050.00", "$1,100.00", `"Lot 42"`, "#7"},
		},
		{
			name:    "NoContact",
			fields:  fields{lookupErr: notify.ErrNoContact},
			wantErr: notify.ErrNoContact,
		},
		{
			name:     "SendFailure",
			fields:   fields{contact: notify.Contact{UserID: "u1", Phone: "5512345678"}, sendErr: errors.New("boom")},
			wantSend: true,
			wantText: []string{"Hi bidder"},
			wantErr:  errors.New("boom"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			dir := mock.NewMockDirectory(ctrl)
			sender := mock.NewMockSender(ctrl)

			dir.EXPECT().Lookup(gomock.Any(), "u1").Return(tt.fields.contact, tt.fields.lookupErr)
			var sent string
			if tt.wantSend {
				sender.EXPECT().
					Send(gomock.Any(), tt.fields.contact.Phone, gomock.Any()).
					DoAndReturn(func(_ context.Context, _ string, text string) error {
						sent = text
						return tt.fields.sendErr
					})
			}

			n := notify.NewNotifier(dir, sender, nil)
			err := n.NotifyOutbid(context.Background(), notify.OutbidNotice{
				UserID: "u1", AuctionID: 7, Title: "Lot 42",
				PreviousAmount: 105000, NewAmount: 110000,
			})
			if (err != nil) != (tt.wantErr != nil) {
				t.Fatalf("NotifyOutbid() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && errors.Is(tt.wantErr, notify.ErrNoContact) && !errors.Is(err, notify.ErrNoContact) {
				t.Errorf("NotifyOutbid() error = %v, want ErrNoContact", err)
			}
			for _, want := range tt.wantText {
				if !strings.Contains(sent, want) {
					t.Errorf("message %q missing %q", sent, want)
				}
			}
		})
	}
}

func TestNotifier_NotifyWinner(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mock.NewMockDirectory(ctrl)
	sender := mock.NewMockSender(ctrl)

	dir.EXPECT().Lookup(gomock.Any(), "u2").Return(notify.Contact{UserID: "u2", FullName: "Luis", Phone: "5215550001"}, nil)
	sender.EXPECT().
		Send(gomock.Any(), "5215550001", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, text string) error {
			for _, want := range []string{"Congratulations Luis", "$1,200.00", "delivery #3"} {
				if !strings.Contains(text, want) {
					t.Errorf("message %q missing %q", text, want)
				}
			}
			return nil
		})

	n := notify.NewNotifier(dir, sender, nil)
	err := n.NotifyWinner(context.Background(), notify.WinnerNotice{
		UserID: "u2", AuctionID: 9, Title: "Pallet of tires", Amount: 120000, DeliveryID: 3,
	})
	if err != nil {
		t.Fatalf("NotifyWinner() error = %v", err)
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{100000, "$1,000.00"},
		{123456789, "$1,234,567.89"},
		{-2550, "-$25.50"},
	}
	for _, tt := range tests {
		if got := notify.FormatMoney(tt.cents); got != tt.want {
			t.Errorf("FormatMoney(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestMoney_Format(t *testing.T) {
	tests := []struct {
		m      notify.Money
		amount int64
		want   string
	}{
		{notify.Money{Symbol: "MX$", MinorUnits: 0}, 100000, "MX$100,000"},
		{notify.Money{Symbol: "MX$", MinorUnits: 0}, -1500, "-MX$1,500"},
		{notify.Money{Symbol: "", MinorUnits: 3}, 1234567, "1,234.567"},
		{notify.Money{Symbol: "€", MinorUnits: 2}, 7, "€0.07"},
	}
	for _, tt := range tests {
		if got := tt.m.Format(tt.amount); got != tt.want {
			t.Errorf("%+v.Format(%d) = %q, want %q", tt.m, tt.amount, got, tt.want)
		}
	}
}

func TestNotifier_WithMoney(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mock.NewMockDirectory(ctrl)
	sender := mock.NewMockSender(ctrl)

	dir.EXPECT().Lookup(gomock.Any(), "u2").Return(notify.Contact{UserID: "u2", FullName: "Luis", Phone: "5215550001"}, nil)
	sender.EXPECT().
		Send(gomock.Any(), "5215550001", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, text string) error {
			if !strings.Contains(text, "at MX$120,000.") {
				t.Errorf("message %q not formatted with MX$ and no decimals", text)
			}
			return nil
		})

	n := notify.NewNotifier(dir, sender, nil, notify.WithMoney(notify.Money{Symbol: "MX$"}))
	err := n.NotifyWinner(context.Background(), notify.WinnerNotice{
		UserID: "u2", AuctionID: 9, Title: "Pallet of tires", Amount: 120000, DeliveryID: 3,
	})
	if err != nil {
		t.Fatalf("NotifyWinner() error = %v", err)
	}
	// 默认格式不受影响
	if got := notify.FormatMoney(120000); got != "$1,200.00" {
		t.Errorf("FormatMoney() = %q after WithMoney", got)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"+52 (55) 1234-5678": "525512345678",
		"5512345678":         "5512345678",
		"n/a":                "",
	}
	for in, want := range tests {
		if got := notify.NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
