package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"wifiportal/internal/models"
	"wifiportal/internal/repository"
	"wifiportal/internal/vouchercode"
)

const (
	maxPerPage = 200
	qrMinSize  = 128
	qrMaxSize  = 1024
	qrDefault  = 256
)

// VoucherService backs the admin voucher screens.
type VoucherService struct {
	store     repository.Store
	portalURL string
}

func NewVoucherService(store repository.Store, portalURL string) *VoucherService {
	return &VoucherService{store: store, portalURL: strings.TrimSpace(portalURL)}
}

func (s *VoucherService) List(ctx context.Context, actor Actor, page, perPage int) ([]models.Voucher, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = 50
	}

	var vouchers []models.Voucher
	err := withReadRetry(ctx, func(ctx context.Context) error {
		var err error
		vouchers, err = s.store.Repos().Vouchers.List(ctx, repository.Page{
			Limit:  perPage,
			Offset: (page - 1) * perPage,
		})
		return err
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return vouchers, nil
}

// QRCode renders a PNG for printing on a voucher card. With a portal URL
// configured the code opens the redeem page prefilled.
func (s *VoucherService) QRCode(ctx context.Context, actor Actor, code string, size int) ([]byte, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}
	code = vouchercode.Normalize(code)
	if code == "" {
		return nil, invalidf("voucher code required")
	}
	if size == 0 {
		size = qrDefault
	}
	if size < qrMinSize || size > qrMaxSize {
		return nil, invalidf("size must be between %d and %d", qrMinSize, qrMaxSize)
	}

	voucher, err := s.store.Repos().Vouchers.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrVoucherNotFound) {
		return nil, fmt.Errorf("%w: voucher %s", ErrNotFound, code)
	}
	if err != nil {
		return nil, unavailable(err)
	}

	png, err := qrcode.Encode(s.qrContent(voucher.Code), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

func (s *VoucherService) qrContent(code string) string {
	if s.portalURL == "" {
		return code
	}
	u, err := url.Parse(s.portalURL)
	if err != nil {
		return code
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}
