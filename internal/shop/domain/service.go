package domain

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

type InstallRequest struct {
	Shop        string `json:"shop"`
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

type Service interface {
	Install(context.Context, InstallRequest) (ShopAccount, error)
	Get(ctx context.Context, shop string) (ShopAccount, error)
	List(context.Context) ([]ShopAccount, error)
	Uninstall(ctx context.Context, shop string) error
}

var (
	ErrShopNotFound       = errors.New("shop_not_found")
	ErrInvalidShop        = errors.New("invalid_shop")
	ErrInvalidAccessToken = errors.New("invalid_access_token")
)

var shopPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// NormalizeShop lowercases a shop domain, strips a scheme or trailing slash and validates it.
func NormalizeShop(raw string) (string, error) {
	shop := strings.ToLower(strings.TrimSpace(raw))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	shop = strings.TrimSuffix(shop, "/")
	if !shopPattern.MatchString(shop) {
		return "", ErrInvalidShop
	}
	return shop, nil
}
