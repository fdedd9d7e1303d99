package password

import "unicode"

// Policy define los requisitos mínimos de una contraseña nueva.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// Check retorna la lista de requisitos incumplidos (vacía = válida).
func (p Policy) Check(plain string) []string {
	var errs []string
	if len(plain) < p.MinLength {
		errs = append(errs, "too_short")
	}
	var upper, lower, digit, symbol bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if p.RequireUpper && !upper {
		errs = append(errs, "missing_upper")
	}
	if p.RequireLower && !lower {
		errs = append(errs, "missing_lower")
	}
	if p.RequireDigit && !digit {
		errs = append(errs, "missing_digit")
	}
	if p.RequireSymbol && !symbol {
		errs = append(errs, "missing_symbol")
	}
	return errs
}
