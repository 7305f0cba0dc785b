package flow

import "strings"

// DefaultCountryCode is used when a local number starts with a leading zero.
const DefaultCountryCode = "62"

// MinPhoneDigits is the minimum digit count required before any
// directory lookup or OTP send may be attempted.
const MinPhoneDigits = 10

var phoneCleaner = strings.NewReplacer(" ", "", "\t", "", "-", "", "(", "", ")", "")

// NormalizePhone converts free-form phone input into canonical
// international format using the default country code.
func NormalizePhone(raw string) string {
	return NormalizePhoneCountry(raw, DefaultCountryCode)
}

// NormalizePhoneCountry strips separators, replaces a leading zero with the
// given country calling code and prepends "+" when missing. The transform is
// pure and idempotent; it never fails. Malformed numbers are only caught
// downstream when lookup or send fails.
func NormalizePhoneCountry(raw, countryCode string) string {
	phone := phoneCleaner.Replace(strings.TrimSpace(raw))
	if strings.HasPrefix(phone, "0") {
		phone = countryCode + phone[1:]
	}
	if phone != "" && !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return phone
}

// CountDigits returns the number of decimal digits in raw, ignoring
// separators and the "+" prefix. Callers gate network calls on
// CountDigits(raw) >= MinPhoneDigits.
func CountDigits(raw string) int {
	count := 0
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			count++
		}
	}
	return count
}

// ValidPhone reports whether phone is in canonical form: a leading "+",
// digits only after it, and at least MinPhoneDigits digits.
func ValidPhone(phone string) bool {
	if !strings.HasPrefix(phone, "+") {
		return false
	}
	digits := phone[1:]
	if len(digits) < MinPhoneDigits {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
