package rope

import "fmt"

// Simulate replays cmds on a chain of 1+followers knots starting at the
// origin and returns every state, initial one included. The result has
// 1 + TotalSteps(cmds) entries.
func Simulate(cmds []Command, followers int) (History, error) {
	for i, c := range cmds {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
	}
	hist := make(History, 0, 1+TotalSteps(cmds))
	st, err := NewStepper(followers, WithObserver(func(s Step) error {
		hist = append(hist, s.State)
		return nil
	}))
	if err != nil {
		return nil, err
	}
	hist = append(hist, st.State())
	if err := st.Run(cmds); err != nil {
		return nil, err
	}
	return hist, nil
}
