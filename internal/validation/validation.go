// Package validation содержит проверки пользовательского ввода при бронировании.
package validation

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	mobileRe       = regexp.MustCompile(`^09\d{9}$`)
	mobilePrefixRe = regexp.MustCompile(`^(\+98|0098)9\d{9}$`)
	landlineRe     = regexp.MustCompile(`^0\d{10}$`)
	emailRe        = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	dateRe         = regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2}$`)
	time24Re       = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	time12Re       = regexp.MustCompile(`^(\d{1,2})(:\d{2})?\s*([a-zA-Z]+)$`)
)

// periodMarkers — допустимые суффиксы 12-часового формата времени.
var periodMarkers = map[string]bool{
	"am":        true,
	"pm":        true,
	"morning":   true,
	"noon":      true,
	"afternoon": true,
	"evening":   true,
	"night":     true,
}

// NormalizePhone убирает пробелы и дефисы из номера телефона.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, phone)
}

// IsValidPhone проверяет мобильный (09xxxxxxxxx, опционально с кодом страны)
// или городской (0 и ещё 10 цифр) номер после нормализации.
func IsValidPhone(phone string) bool {
	p := NormalizePhone(phone)
	return mobileRe.MatchString(p) || mobilePrefixRe.MatchString(p) || landlineRe.MatchString(p)
}

// IsValidEmail проверяет адрес формата local@domain.tld.
func IsValidEmail(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

// IsValidName проверяет имя или фамилию: от 2 до 50 символов без учёта
// крайних пробелов.
func IsValidName(name string) bool {
	n := len([]rune(strings.TrimSpace(name)))
	return n >= 2 && n <= 50
}

// IsValidLocation проверяет описание места проведения: не короче 3 символов.
func IsValidLocation(location string) bool {
	return len([]rune(strings.TrimSpace(location))) >= 3
}

// IsValidDuration проверяет подпись длительности съёмки.
func IsValidDuration(duration string) bool {
	return len([]rune(strings.TrimSpace(duration))) >= 2
}

// ParseGuestCount разбирает количество гостей в диапазоне [1, 10000].
func ParseGuestCount(s string) (int, bool) {
	return parseIntInRange(s, 1, 10000)
}

// ParseCameraCount разбирает количество камер в диапазоне [1, 5].
func ParseCameraCount(s string) (int, bool) {
	return parseIntInRange(s, 1, 5)
}

// ParsePhotographerCount разбирает количество операторов в диапазоне [1, 4].
func ParsePhotographerCount(s string) (int, bool) {
	return parseIntInRange(s, 1, 4)
}

// ParseCustomCost разбирает пользовательскую базовую стоимость: целое ≥ 0
// в минимальных единицах валюты.
func ParseCustomCost(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func parseIntInRange(s string, min, max int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < min || v > max {
		return 0, false
	}
	return v, true
}

// monthLen возвращает число дней месяца в календаре студии:
// месяцы 1–6 — 31 день, 7–11 — 30 дней, 12-й — 29.
func monthLen(month int) int {
	switch {
	case month <= 6:
		return 31
	case month <= 11:
		return 30
	default:
		return 29
	}
}

// IsValidEventDate проверяет дату мероприятия. В нестрогом режиме достаточно
// непустой строки длиной от 8 символов. Строгий режим требует формат
// ГГГГ/ММ/ДД, год в [1400, 1410] и день в пределах длины месяца.
func IsValidEventDate(date string, strict bool) bool {
	d := strings.TrimSpace(date)
	if len([]rune(d)) < 8 {
		return false
	}
	if !strict {
		return true
	}

	if !dateRe.MatchString(d) {
		return false
	}

	parts := strings.Split(d, "/")
	year, _ := strconv.Atoi(parts[0])
	month, _ := strconv.Atoi(parts[1])
	day, _ := strconv.Atoi(parts[2])

	if year < 1400 || year > 1410 {
		return false
	}
	if month < 1 || month > 12 {
		return false
	}
	return day >= 1 && day <= monthLen(month)
}

// IsValidEventTime проверяет время мероприятия: 24-часовой формат H:MM/HH:MM
// либо 12-часовой с суффиксом периода дня.
func IsValidEventTime(t string) bool {
	s := strings.TrimSpace(t)

	if time24Re.MatchString(s) {
		parts := strings.Split(s, ":")
		hour, _ := strconv.Atoi(parts[0])
		minute, _ := strconv.Atoi(parts[1])
		return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
	}

	m := time12Re.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	hour, _ := strconv.Atoi(m[1])
	if hour < 1 || hour > 12 {
		return false
	}
	if m[2] != "" {
		minute, _ := strconv.Atoi(m[2][1:])
		if minute > 59 {
			return false
		}
	}
	return periodMarkers[strings.ToLower(m[3])]
}
