package admin

import "errors"

var (
	ErrBadRouteEndpoints  = errors.New("route endpoints invalid")
	ErrBadScheduleWindow  = errors.New("schedule window invalid")
	ErrEmptySeatLayout    = errors.New("schedule has no seats")
	ErrNonPositivePrice   = errors.New("base price must be positive")
	ErrPercentOutOfRange  = errors.New("percentage out of range")
	ErrNegativeLeadTime   = errors.New("lead-time threshold negative")
	ErrEmptyPromotionCode = errors.New("promotion code empty")
)
