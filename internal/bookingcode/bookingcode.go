// Package bookingcode генерирует короткие коды брони для передачи клиенту.
package bookingcode

import (
	"crypto/rand"
	"fmt"
)

// Alphabet не содержит визуально неоднозначных символов: 0, O, I и 1
// исключены. 32 символа на 6 позиций дают более 10^9 комбинаций.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length — длина кода брони.
const Length = 6

// Generate возвращает случайный код брони. Уникальность кода обеспечивает
// вызывающая сторона проверкой по хранилищу.
func Generate() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}

	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}
