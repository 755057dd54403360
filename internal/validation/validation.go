// Package validation содержит функции валидации пользовательского ввода.
package validation

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^(\(?\d{2}\)?\s?)?\d{4,5}-?\d{4}$`)
	cepRe   = regexp.MustCompile(`^\d{5}-?\d{3}$`)

	upperRe = regexp.MustCompile(`[A-Z]`)
	lowerRe = regexp.MustCompile(`[a-z]`)
	digitRe = regexp.MustCompile(`\d`)
)

// ValidateEmail проверяет, что адрес имеет вид local@domain.tld:
// сегменты без пробелов, ровно один символ @ и хотя бы одна точка в домене.
func ValidateEmail(email string) bool {
	return emailRe.MatchString(email)
}

// ValidatePhone проверяет бразильский номер телефона: код города в скобках
// или без них, дефис перед последними четырьмя цифрами необязателен.
func ValidatePhone(phone string) bool {
	return phoneRe.MatchString(strings.ReplaceAll(phone, " ", ""))
}

// ValidateCEP проверяет бразильский почтовый индекс: восемь цифр
// с необязательным дефисом после пятой.
func ValidateCEP(cep string) bool {
	return cepRe.MatchString(cep)
}

// PasswordRule описывает одно невыполненное требование к паролю.
type PasswordRule string

const (
	PasswordRuleLength    PasswordRule = "min_length"
	PasswordRuleUppercase PasswordRule = "uppercase"
	PasswordRuleLowercase PasswordRule = "lowercase"
	PasswordRuleDigit     PasswordRule = "digit"
)

// PasswordMinLength - минимальная длина пароля.
const PasswordMinLength = 8

// ValidatePassword проверяет пароль и возвращает упорядоченный список
// невыполненных требований, чтобы вызывающая сторона могла показать
// сразу все нарушения, а не только первое.
func ValidatePassword(password string) (bool, []PasswordRule) {
	var violations []PasswordRule

	if len(password) < PasswordMinLength {
		violations = append(violations, PasswordRuleLength)
	}
	if !upperRe.MatchString(password) {
		violations = append(violations, PasswordRuleUppercase)
	}
	if !lowerRe.MatchString(password) {
		violations = append(violations, PasswordRuleLowercase)
	}
	if !digitRe.MatchString(password) {
		violations = append(violations, PasswordRuleDigit)
	}

	return len(violations) == 0, violations
}
