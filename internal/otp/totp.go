package otp

import (
	"strings"
)

// TOTP verifica códigos basados en tiempo.
type TOTP struct{}

func (TOTP) Type() string { return TypeTOTP }

// Check busca value en el paso actual ± Window, sin bajar de Counter.
// El contador del match es el número de paso (unix / Step).
func (TOTP) Check(value string, st State) Result {
	value = strings.TrimSpace(value)
	if len(value) != st.digits() {
		return failed(NoMatch)
	}
	step := int64(st.Step)
	if step <= 0 {
		step = 30
	}
	current := st.now().Unix() / step
	from := current - int64(st.Window)
	if from < st.Counter {
		from = st.Counter
	}
	return searchWindow(value, st, from, current+int64(st.Window))
}

// StepAt retorna el número de paso para t.
func StepAt(unix int64, step int) int64 {
	if step <= 0 {
		step = 30
	}
	return unix / int64(step)
}
