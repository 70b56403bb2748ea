package domain

import "errors"

var (
	// ErrNotFound: общий признак отсутствующей сущности.
	ErrNotFound = errors.New("not found")

	// ErrUserNotFound возвращается, когда пользователь не зарегистрирован.
	ErrUserNotFound = errors.New("user not found")

	// ErrAPIKeyNotFound возвращается, когда ключ не найден или принадлежит другому пользователю.
	ErrAPIKeyNotFound = errors.New("api key not found")

	// ErrSubscriptionNotFound возвращается, когда у пользователя нет активной подписки.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrPaymentNotFound возвращается, когда платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
)
