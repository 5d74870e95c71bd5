package psu

import "time"

// Sample is one poll of the supply: live output plus the setpoints.
type Sample struct {
	Model    string    `json:"model"`
	Time     time.Time `json:"time"`
	Status   Status    `json:"status"`
	Settings Settings  `json:"settings"`
	Power    float64   `json:"power"` // W, from the live output
}

// Poll reads status and settings back to back.
func (s *Supply) Poll() (*Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Status
	if err := s.exchange(GetStatus{}, &st); err != nil {
		return nil, err
	}
	var set Settings
	if err := s.exchange(GetSettings{}, &set); err != nil {
		return nil, err
	}
	return &Sample{
		Model:    s.Variant.Model(),
		Time:     time.Now(),
		Status:   st,
		Settings: set,
		Power:    st.Voltage * st.Current,
	}, nil
}
