package notify

import (
	"context"
	"errors"

	"customs_auction/internal/model"

	"gorm.io/gorm"
)

// ErrNoContact 用户不存在或没有登记手机号，重试也无法送达。
var ErrNoContact = errors.New("notify: no contact for user")

type Contact struct {
	UserID   string
	FullName string
	Phone    string
}

// Directory 按用户 ID 查找联系方式。
type Directory interface {
	Lookup(ctx context.Context, userID string) (Contact, error)
}

// ProfileDirectory 从 profiles 表读取联系方式。
type ProfileDirectory struct {
	db *gorm.DB
}

func NewProfileDirectory(db *gorm.DB) *ProfileDirectory {
	return &ProfileDirectory{db: db}
}

func (d *ProfileDirectory) Lookup(ctx context.Context, userID string) (Contact, error) {
	var p model.Profile
	if err := d.db.WithContext(ctx).First(&p, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Contact{}, ErrNoContact
		}
		return Contact{}, err
	}
	if NormalizePhone(p.Phone) == "" {
		return Contact{}, ErrNoContact
	}
	return Contact{UserID: p.ID, FullName: p.FullName, Phone: p.Phone}, nil
}
