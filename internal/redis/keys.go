package redisx

import "fmt"

const ns = "farego:v1"

func KeyScheduleSummary(scheduleID string) string {
	return fmt.Sprintf("%s:schedule:%s:summary", ns, scheduleID)
}

func KeyScheduleAvailability(scheduleID string) string {
	return fmt.Sprintf("%s:schedule:%s:availability", ns, scheduleID)
}

func KeyScheduleSeatMap(scheduleID string) string {
	return fmt.Sprintf("%s:schedule:%s:seatmap", ns, scheduleID)
}

func ChannelBookingEvents() string {
	return ns + ":bookings:events"
}
