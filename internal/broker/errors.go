package broker

import (
	"errors"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示券商处于维护状态，需要上层跳过本轮。
	ErrMaintenance = errors.New("broker on maintenance")
	// ErrSessionUnusable 表示会话已不可用（认证失效等），本轮应中止。
	ErrSessionUnusable = errors.New("broker session unusable")
)

// IsRetryable 判断错误是否可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}

// IsBrokerRejection 判断错误是否为券商侧对订单本身的拒绝（终态，不重试）。
func IsBrokerRejection(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.InvalidOrderErrType,
			ccxt.InsufficientFundsErrType,
			ccxt.BadSymbolErrType,
			ccxt.BadRequestErrType,
			ccxt.OrderNotFillableErrType:
			return true
		default:
			return false
		}
	}

	return false
}

// IsSessionUnusable 判断错误是否意味着整个会话不可用。
func IsSessionUnusable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionUnusable) {
		return true
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.AuthenticationErrorErrType,
			ccxt.AccountSuspendedErrType,
			ccxt.PermissionDeniedErrType:
			return true
		default:
			return false
		}
	}

	return false
}
