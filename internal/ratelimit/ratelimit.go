// Package ratelimit ограничивает частоту действий акторов по классам.
//
// Семантика — фиксированное окно: первый запрос в окне создаёт счётчик,
// последующие инкрементируют его; по истечении окна счётчик сбрасывается,
// а не накапливается. Всплески на границе окон допустимы по построению.
package ratelimit

import (
	"context"
	"strconv"
	"time"
)

// Class — класс действия со своим независимым окном на каждого актора.
type Class string

const (
	ClassGeneral Class = "general"
	ClassSearch  Class = "search"
	ClassButton  Class = "button"
)

// Rule задаёт лимит и длительность окна для класса действий.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRules возвращает лимиты по умолчанию.
func DefaultRules() map[Class]Rule {
	return map[Class]Rule{
		ClassGeneral: {Limit: 10, Window: time.Minute},
		ClassSearch:  {Limit: 5, Window: time.Minute},
		ClassButton:  {Limit: 30, Window: time.Minute},
	}
}

// Store атомарно инкрементирует счётчик окна по ключу и возвращает его
// значение после инкремента. Окно сбрасывается, если его возраст превысил
// window.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter принимает решение о допуске действия актора.
type Limiter struct {
	store Store
	rules map[Class]Rule
}

// NewLimiter создаёт лимитер с указанным хранилищем окон и правилами.
func NewLimiter(store Store, rules map[Class]Rule) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Limiter{store: store, rules: rules}
}

// Allow сообщает, допущено ли действие. Для неизвестного класса действие
// допускается. Ошибка хранилища не блокирует актора: лимитер в этом случае
// пропускает запрос, а ошибку возвращает вызывающему для логирования.
func (l *Limiter) Allow(ctx context.Context, actorID int64, class Class) (bool, error) {
	rule, ok := l.rules[class]
	if !ok {
		return true, nil
	}

	count, err := l.store.Incr(ctx, windowKey(actorID, class), rule.Window)
	if err != nil {
		return true, err
	}
	return count <= int64(rule.Limit), nil
}

func windowKey(actorID int64, class Class) string {
	return string(class) + ":" + strconv.FormatInt(actorID, 10)
}
